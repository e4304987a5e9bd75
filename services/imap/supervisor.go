package imap

import (
	"context"
	"sync"
	"time"

	"github.com/jpillora/backoff"
	"github.com/pkg/errors"

	"github.com/customeros/mailpulse/interfaces"
	"github.com/customeros/mailpulse/internal/enum"
	mailerr "github.com/customeros/mailpulse/internal/errors"
	"github.com/customeros/mailpulse/internal/logger"
	"github.com/customeros/mailpulse/internal/tracing"
)

type SupervisorConfig struct {
	ReconnectDelay time.Duration
	RetryMin       time.Duration
	RetryMax       time.Duration
	Keepalive      time.Duration
}

type ReadyFunc func(ctx context.Context, mb interfaces.Mailbox)

// Supervisor owns the single mailbox connection. It dials until it gets a
// session, watches it, and starts over whenever the session ends.
type Supervisor struct {
	dialer interfaces.MailboxDialer
	cfg    SupervisorConfig
	log    logger.Logger

	mu            sync.RWMutex
	current       interfaces.Mailbox
	state         enum.ConnectionState
	lastConnected *time.Time
	lastError     string
	reconnects    int
	onReady       []ReadyFunc

	teardown chan teardownRequest
}

type teardownRequest struct {
	mailbox interfaces.Mailbox
	reason  error
}

func NewSupervisor(dialer interfaces.MailboxDialer, cfg SupervisorConfig, log logger.Logger) *Supervisor {
	return &Supervisor{
		dialer:   dialer,
		cfg:      cfg,
		log:      log,
		state:    enum.ConnectionDisconnected,
		teardown: make(chan teardownRequest, 1),
	}
}

// OnReady registers a callback run each time a connection authenticates.
// Callbacks run on the supervisor goroutine and must not block.
func (s *Supervisor) OnReady(fn ReadyFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onReady = append(s.onReady, fn)
}

// Run blocks until ctx is cancelled. Failures are never returned.
func (s *Supervisor) Run(ctx context.Context) error {
	retry := &backoff.Backoff{
		Min:    s.cfg.RetryMin,
		Max:    s.cfg.RetryMax,
		Factor: 1.5,
		Jitter: true,
	}

	for {
		if ctx.Err() != nil {
			return nil
		}

		s.setState(enum.ConnectionConnecting)
		mb, err := s.dialer.Dial(ctx)
		if err != nil {
			s.recordError(err)
			s.setState(enum.ConnectionDisconnected)
			wait := retry.Duration()
			s.log.Warnf("IMAP connection failed, retrying in %s: %v", wait, err)
			if !sleep(ctx, wait) {
				return nil
			}
			continue
		}
		retry.Reset()

		s.attach(mb)
		s.notifyReady(ctx, mb)

		reason := s.watch(ctx, mb)
		s.detach(mb)

		if ctx.Err() != nil {
			s.closeMailbox(mb)
			return nil
		}

		s.recordError(reason)
		s.log.Warnf("IMAP connection terminated, reconnecting in %s: %v", s.cfg.ReconnectDelay, reason)
		if !sleep(ctx, s.cfg.ReconnectDelay) {
			s.closeMailbox(mb)
			return nil
		}
		s.closeMailbox(mb)

		s.mu.Lock()
		s.reconnects++
		s.mu.Unlock()
	}
}

func (s *Supervisor) watch(ctx context.Context, mb interfaces.Mailbox) error {
	var tick <-chan time.Time
	if s.cfg.Keepalive > 0 {
		ticker := time.NewTicker(s.cfg.Keepalive)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-mb.Done():
			return mailerr.ErrConnectionClosed
		case req := <-s.teardown:
			if req.mailbox == mb {
				return req.reason
			}
		case <-tick:
			if err := mb.Noop(); err != nil {
				return errors.Wrap(err, "keepalive failed")
			}
		}
	}
}

// Teardown ends the session of mb so a fresh connection is dialed. Requests
// for a connection that is no longer current are dropped.
func (s *Supervisor) Teardown(mb interfaces.Mailbox, reason error) {
	if mb == nil || s.Current() != mb {
		return
	}
	if reason == nil {
		reason = mailerr.ErrTeardownRequested
	}
	select {
	case s.teardown <- teardownRequest{mailbox: mb, reason: reason}:
	default:
	}
}

// Current returns the live connection, or nil while disconnected.
func (s *Supervisor) Current() interfaces.Mailbox {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

func (s *Supervisor) State() enum.ConnectionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Supervisor) Status() interfaces.IngestionStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return interfaces.IngestionStatus{
		State:         s.state,
		Connected:     s.current != nil,
		LastConnected: s.lastConnected,
		LastError:     s.lastError,
		Reconnects:    s.reconnects,
	}
}

func (s *Supervisor) attach(mb interfaces.Mailbox) {
	// drop requests aimed at the previous connection
	select {
	case <-s.teardown:
	default:
	}

	now := time.Now().UTC()
	s.mu.Lock()
	s.current = mb
	s.state = enum.ConnectionAuthenticated
	s.lastConnected = &now
	s.lastError = ""
	s.mu.Unlock()
}

func (s *Supervisor) detach(mb interfaces.Mailbox) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == mb {
		s.current = nil
	}
	s.state = enum.ConnectionDisconnected
}

func (s *Supervisor) notifyReady(ctx context.Context, mb interfaces.Mailbox) {
	s.mu.RLock()
	callbacks := append([]ReadyFunc(nil), s.onReady...)
	s.mu.RUnlock()

	for _, fn := range callbacks {
		func() {
			defer tracing.RecoverAndLogToJaeger(s.log)
			fn(ctx, mb)
		}()
	}
}

// markState moves between the connected sub-states of mb. It is a no-op
// once mb has been detached.
func (s *Supervisor) markState(mb interfaces.Mailbox, state enum.ConnectionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil && s.current == mb {
		s.state = state
	}
}

func (s *Supervisor) setState(state enum.ConnectionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

func (s *Supervisor) recordError(err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastError = err.Error()
}

func (s *Supervisor) closeMailbox(mb interfaces.Mailbox) {
	if err := mb.Close(); err != nil {
		s.log.Debugf("Error closing IMAP connection: %v", err)
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
