package transport

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mash-protocol/meshgw/pkg/log"
)

// Session owns exactly one attribute-protocol connection to a mesh gateway
// edge device at a time. All state mutation runs on a single dedicated
// goroutine (ioLoop); callers reach it through Submit.
type Session struct {
	driver LinkDriver
	logger log.Logger

	submitCh chan submission
	closeCh  chan struct{}
	doneCh   chan struct{}
	closeOne sync.Once

	mu         sync.Mutex
	conn       LinkConn
	connID     string
	remoteAddr string
	notifyCh   chan []byte
}

type submission struct {
	fn     func() error
	result chan error
}

// NewSession creates a Session backed by driver. logger may be nil, in
// which case protocol events are not captured.
func NewSession(driver LinkDriver, logger log.Logger) *Session {
	if logger == nil {
		logger = log.NoopLogger{}
	}
	s := &Session{
		driver:   driver,
		logger:   logger,
		submitCh: make(chan submission),
		closeCh:  make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	go s.ioLoop()
	return s
}

func (s *Session) ioLoop() {
	defer close(s.doneCh)
	for {
		select {
		case sub := <-s.submitCh:
			sub.result <- sub.fn()
		case <-s.closeCh:
			return
		}
	}
}

// Submit schedules fn onto the session's I/O goroutine and blocks for its
// result. Every connection-state mutation in this package goes through
// Submit, which is what makes the single dedicated goroutine a true
// serialization point.
func (s *Session) Submit(fn func() error) error {
	result := make(chan error, 1)
	select {
	case s.submitCh <- submission{fn: fn, result: result}:
	case <-s.doneCh:
		return ErrSessionClosed
	}
	select {
	case err := <-result:
		return err
	case <-s.doneCh:
		return ErrSessionClosed
	}
}

// Connect establishes the link to device, then attempts to subscribe to the
// sensor-notification attribute. Subscription failure means the peer isn't
// a gateway device: the link is torn back down and ErrNoGattService is
// returned so the caller can try the next scan result.
func (s *Session) Connect(ctx context.Context, device Device) error {
	return s.Submit(func() error {
		s.mu.Lock()
		already := s.conn != nil
		s.mu.Unlock()
		if already {
			return ErrAlreadyConnected
		}

		conn, err := s.driver.Connect(ctx, device.Address)
		if err != nil {
			return err
		}
		if err := conn.Subscribe(ctx); err != nil {
			conn.Disconnect()
			return ErrNoGattService
		}

		connID := uuid.New().String()
		notifyCh := make(chan []byte, 64)

		s.mu.Lock()
		s.conn = conn
		s.connID = connID
		s.remoteAddr = device.Address
		s.notifyCh = notifyCh
		s.mu.Unlock()

		go s.pumpNotifications(conn, notifyCh, connID, device.Address)

		s.logger.Log(log.Event{
			Timestamp:    time.Now(),
			ConnectionID: connID,
			Direction:    log.DirectionIn,
			Layer:        log.LayerTransport,
			Category:     log.CategoryState,
			RemoteAddr:   device.Address,
			StateChange: &log.StateChangeEvent{
				Entity:   log.StateEntityConnection,
				NewState: "connected",
			},
		})
		return nil
	})
}

func (s *Session) pumpNotifications(conn LinkConn, out chan<- []byte, connID, remoteAddr string) {
	defer close(out)
	for frame := range conn.Notifications() {
		loggedData, truncated := log.TruncateFrameData(frame)
		s.logger.Log(log.Event{
			Timestamp:    time.Now(),
			ConnectionID: connID,
			Direction:    log.DirectionIn,
			Layer:        log.LayerTransport,
			Category:     log.CategoryMessage,
			RemoteAddr:   remoteAddr,
			Frame: &log.FrameEvent{
				Size:         len(frame),
				Data:         loggedData,
				Continuation: len(frame) > 0 && frame[0] == '+',
				Truncated:    truncated,
			},
		})
		out <- frame
	}
}

// WriteCommand sends a single command frame. Single-writer, fire-and-forget.
func (s *Session) WriteCommand(data []byte) error {
	return s.Submit(func() error {
		s.mu.Lock()
		conn := s.conn
		connID := s.connID
		s.mu.Unlock()
		if conn == nil {
			return ErrNotConnected
		}
		err := conn.Write(data)
		loggedData, truncated := log.TruncateFrameData(data)
		s.logger.Log(log.Event{
			Timestamp:    time.Now(),
			ConnectionID: connID,
			Direction:    log.DirectionOut,
			Layer:        log.LayerTransport,
			Category:     log.CategoryMessage,
			Frame:        &log.FrameEvent{Size: len(data), Data: loggedData, Truncated: truncated},
		})
		return err
	})
}

// Disconnect tears down the current link. Idempotent: disconnecting an
// already-disconnected session is a no-op, not an error.
func (s *Session) Disconnect() error {
	return s.Submit(func() error {
		s.mu.Lock()
		conn := s.conn
		connID := s.connID
		s.mu.Unlock()
		if conn == nil {
			return nil
		}

		err := conn.Disconnect()

		s.mu.Lock()
		s.conn = nil
		s.connID = ""
		s.remoteAddr = ""
		s.mu.Unlock()

		s.logger.Log(log.Event{
			Timestamp:    time.Now(),
			ConnectionID: connID,
			Direction:    log.DirectionIn,
			Layer:        log.LayerTransport,
			Category:     log.CategoryState,
			StateChange: &log.StateChangeEvent{
				Entity:   log.StateEntityConnection,
				NewState: "disconnected",
			},
		})
		return err
	})
}

// IsConnected reports whether the session currently holds a link. It does
// not go through Submit: the health-check supervisor polls this every 2s
// and a non-blocking read keeps that cadence cheap.
func (s *Session) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

// MTU returns the negotiated MTU of the current link, or 0 if disconnected.
func (s *Session) MTU() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return 0
	}
	return s.conn.MTU()
}

// Logger returns the protocol logger this session was constructed with,
// for callers at higher layers (e.g. pkg/gateway's notify-layer dispatch)
// that need to log classified messages under the same ConnectionID.
func (s *Session) Logger() log.Logger {
	return s.logger
}

// RemoteAddr returns the address of the currently connected peer, or "".
func (s *Session) RemoteAddr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remoteAddr
}

// ConnectionID returns the UUID assigned to the current connection, or "".
func (s *Session) ConnectionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connID
}

// Notifications returns the channel of inbound frames for the current
// connection. Callers should re-fetch it after every successful Connect;
// it is closed when that connection ends.
func (s *Session) Notifications() <-chan []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.notifyCh
}

// Close stops the session's I/O goroutine. The session is unusable after
// Close; pending and future Submit calls return ErrSessionClosed.
func (s *Session) Close() {
	s.closeOne.Do(func() {
		close(s.closeCh)
	})
	<-s.doneCh
}
