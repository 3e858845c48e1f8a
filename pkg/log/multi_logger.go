package log

// MultiLogger fans one event out to several loggers at once — typically a
// console SlogAdapter for the operator plus a FileLogger for offline
// analysis with meshgw-log.
type MultiLogger struct {
	loggers []Logger
}

// NewMultiLogger creates a MultiLogger that sends events to all provided loggers.
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	return &MultiLogger{loggers: loggers}
}

// Log sends the event to every configured logger in turn. Each logger is
// isolated from the others' panics: a console adapter choking on a
// malformed event must not stop the file logger (the durable record) from
// receiving it, and vice versa.
func (m *MultiLogger) Log(event Event) {
	for _, l := range m.loggers {
		logSafely(l, event)
	}
}

func logSafely(l Logger, event Event) {
	defer func() { recover() }()
	l.Log(event)
}

// Compile-time interface satisfaction check.
var _ Logger = (*MultiLogger)(nil)
