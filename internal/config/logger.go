package config

import (
	"log/slog"
	"os"

	"github.com/mash-protocol/meshgw/pkg/log"
)

// BuildProtocolLogger assembles the pkg/log.Logger a transport.Session should
// capture protocol frames/messages/state-changes through, per cfg.LogLevel
// and cfg.ProtocolLogPath:
//   - LogLevel "debug" adds an slog-backed console logger.
//   - ProtocolLogPath, if set, adds a CBOR file logger.
//   - Neither set: returns log.NoopLogger{}, a no-op closer, nil.
//
// The returned closer must be called on shutdown to flush/close any open
// file logger; it is always safe to call even if no file logger was built.
func BuildProtocolLogger(cfg Config) (log.Logger, func() error, error) {
	var loggers []log.Logger
	closers := make([]func() error, 0, 1)

	if cfg.LogLevel == "debug" {
		handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})
		loggers = append(loggers, log.NewSlogAdapter(slog.New(handler)))
	}

	if cfg.ProtocolLogPath != "" {
		fl, err := log.NewFileLogger(cfg.ProtocolLogPath)
		if err != nil {
			return nil, nil, err
		}
		loggers = append(loggers, fl)
		closers = append(closers, fl.Close)
	}

	closeAll := func() error {
		var firstErr error
		for _, c := range closers {
			if err := c(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return firstErr
	}

	switch len(loggers) {
	case 0:
		return log.NoopLogger{}, closeAll, nil
	case 1:
		return loggers[0], closeAll, nil
	default:
		return log.NewMultiLogger(loggers...), closeAll, nil
	}
}
