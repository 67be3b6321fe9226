// Package socket owns the bridge's websocket connection: the dial, the
// receive loop feeding the command queue, and the single writer that
// serializes outbound frames.
package socket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"nhooyr.io/websocket"

	"bimbridge/internal/adapter/wire"
	"bimbridge/internal/domain"
	"bimbridge/internal/usecase/bridge"
	"bimbridge/internal/usecase/transfer"
)

// Config holds connection settings.
type Config struct {
	HandshakeTimeout time.Duration // dial deadline (default: 10s)
	WriteTimeout     time.Duration // per-frame write deadline (default: 10s)
	SendQueueSize    int           // outbound frames buffered per session (default: 64)
	ReadLimit        int64         // max inbound frame size in bytes (default: 1MiB)
}

// session is one established connection. done is closed once both loops
// have exited.
type session struct {
	conn   *websocket.Conn
	sendCh chan []byte
	done   chan struct{}
}

var _ transfer.Binder = (*Service)(nil)

// Service is the bridge's connection manager. One instance exists per
// process; it is safe for concurrent use.
type Service struct {
	config Config
	inbox  *bridge.Queue[domain.InboundCommand]
	bus    domain.EventBus
	logger *slog.Logger

	mu     sync.Mutex
	status domain.ConnectionStatus
	gen    uint64 // bumped by every Connect and Close; stale goroutines compare against it
	sess   *session
	cancel context.CancelFunc

	wg sync.WaitGroup
}

// NewService creates a disconnected Service that enqueues decoded commands
// into inbox.
func NewService(cfg Config, inbox *bridge.Queue[domain.InboundCommand], bus domain.EventBus, logger *slog.Logger) *Service {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.SendQueueSize <= 0 {
		cfg.SendQueueSize = 64
	}
	if cfg.ReadLimit <= 0 {
		cfg.ReadLimit = 1 << 20
	}
	return &Service{
		config: cfg,
		inbox:  inbox,
		bus:    bus,
		logger: logger,
		status: domain.ConnectionStatus{State: domain.StateDisconnected, Since: time.Now()},
	}
}

// Status returns a snapshot of the connection state.
func (s *Service) Status() domain.ConnectionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Connect starts connecting to uri in the background and returns at once.
// While a connection is being established or is live the request is
// rejected with ErrAlreadyConnected and the live connection is untouched.
func (s *Service) Connect(uri string) error {
	s.mu.Lock()
	if s.status.State.Live() {
		s.status.Message = "connect rejected: already " + string(s.status.State) + " to " + s.status.URI
		current := s.status.URI
		s.mu.Unlock()
		s.logger.Warn("connect rejected", "uri", uri, "current_uri", current)
		return domain.NewDomainError("Socket.Connect", domain.ErrAlreadyConnected, current)
	}

	s.gen++
	gen := s.gen
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.sess = nil
	s.status = domain.ConnectionStatus{
		State:   domain.StateConnecting,
		URI:     uri,
		Message: "connecting to " + uri,
		Since:   time.Now(),
	}
	status := s.status
	s.mu.Unlock()

	s.publish(status)
	s.logger.Info("connecting", "uri", uri)

	s.wg.Add(1)
	go s.run(ctx, cancel, gen, uri)
	return nil
}

// Send encodes msg and hands it to the session writer. Frames from
// concurrent callers are written whole, one at a time. Without a live
// session the message is dropped and ErrNotConnected is returned.
func (s *Service) Send(ctx context.Context, msg domain.OutboundMessage) error {
	s.mu.Lock()
	sess := s.sess
	s.mu.Unlock()
	return s.sendTo(ctx, sess, msg)
}

// Bind returns a Sender pinned to the live session. Once that session ends
// every send fails with ErrNotConnected, even after a new session is up.
func (s *Service) Bind() transfer.Sender {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &boundSender{svc: s, sess: s.sess}
}

type boundSender struct {
	svc  *Service
	sess *session
}

func (b *boundSender) Send(ctx context.Context, msg domain.OutboundMessage) error {
	return b.svc.sendTo(ctx, b.sess, msg)
}

// sendTo queues msg on sess if sess is still the live session.
func (s *Service) sendTo(ctx context.Context, sess *session, msg domain.OutboundMessage) error {
	data, err := wire.Encode(msg)
	if err != nil {
		return err
	}

	s.mu.Lock()
	current := sess != nil && s.sess == sess
	s.mu.Unlock()
	if !current {
		return domain.NewDomainError("Socket.Send", domain.ErrNotConnected, msg.MessageType())
	}

	select {
	case <-sess.done:
		return domain.NewDomainError("Socket.Send", domain.ErrNotConnected, msg.MessageType())
	default:
	}

	select {
	case sess.sendCh <- data:
		return nil
	case <-sess.done:
		return domain.NewDomainError("Socket.Send", domain.ErrNotConnected, msg.MessageType())
	case <-ctx.Done():
		return domain.WrapOp("Socket.Send", ctx.Err())
	}
}

// Close tears down the current connection attempt or session and sets the
// state to Disconnected. It does not wait for the network; use Wait for
// that. Close is idempotent.
func (s *Service) Close() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.sess = nil
	s.gen++
	prev := s.status.State
	s.status = domain.ConnectionStatus{
		State:  domain.StateDisconnected,
		URI:    s.status.URI,
		Reason: "closed by user",
		Since:  time.Now(),
	}
	status := s.status
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if prev != domain.StateDisconnected {
		s.publish(status)
		s.logger.Info("connection closed", "uri", status.URI)
	}
}

// Wait blocks until every background goroutine has exited or ctx is done.
func (s *Service) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run dials, then serves the session until it ends.
func (s *Service) run(ctx context.Context, cancel context.CancelFunc, gen uint64, uri string) {
	defer s.wg.Done()
	defer cancel()

	dialCtx, cancelDial := context.WithTimeout(ctx, s.config.HandshakeTimeout)
	conn, _, err := websocket.Dial(dialCtx, uri, nil)
	cancelDial()
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		var failure error
		if errors.Is(err, context.DeadlineExceeded) {
			failure = domain.NewSubSystemError("socket", "Socket.Connect", domain.ErrTimeout, uri)
		} else {
			failure = domain.NewSubSystemError("socket", "Socket.Connect", domain.ErrTransport, err.Error())
		}
		s.logger.Warn("handshake failed", "uri", uri, "error", failure, "code", domain.ErrorCodeOf(failure))
		s.transition(gen, domain.StateFailed, failure.Error(), nil)
		return
	}
	conn.SetReadLimit(s.config.ReadLimit)

	sess := &session{
		conn:   conn,
		sendCh: make(chan []byte, s.config.SendQueueSize),
		done:   make(chan struct{}),
	}
	if !s.transition(gen, domain.StateConnected, "", sess) {
		conn.Close(websocket.StatusNormalClosure, "superseded")
		return
	}
	s.logger.Info("connected", "uri", uri)

	err = s.serve(ctx, sess)

	switch {
	case ctx.Err() != nil:
		// Closed locally; Close already recorded the state.
	case websocket.CloseStatus(err) != -1:
		reason := fmt.Sprintf("peer closed: %d", websocket.CloseStatus(err))
		s.logger.Info("connection closed by peer", "uri", uri, "status", websocket.CloseStatus(err))
		s.transition(gen, domain.StateDisconnected, reason, nil)
	default:
		// Failed is reserved for handshakes; a live session that drops ends Disconnected.
		lost := domain.NewSubSystemError("socket", "Socket.serve", domain.ErrTransport, err.Error())
		s.logger.Warn("connection lost", "uri", uri, "error", lost, "code", domain.ErrorCodeOf(lost))
		s.transition(gen, domain.StateDisconnected, "connection lost: "+lost.Error(), nil)
	}
}

// serve runs the read and write loops until either fails or ctx ends.
func (s *Service) serve(ctx context.Context, sess *session) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.readLoop(gctx, sess) })
	g.Go(func() error { return s.writeLoop(gctx, sess) })
	err := g.Wait()

	close(sess.done)
	sess.conn.Close(websocket.StatusNormalClosure, "")
	return err
}

// readLoop decodes every inbound frame and enqueues the command. Cancelling
// ctx interrupts the pending read and tears the connection down.
func (s *Service) readLoop(ctx context.Context, sess *session) error {
	for {
		_, data, err := sess.conn.Read(ctx)
		if err != nil {
			return err
		}
		cmd, err := wire.DecodeCommand(data)
		if err != nil {
			s.logger.Warn("dropping undecodable frame", "error", err, "bytes", len(data))
			continue
		}
		s.inbox.Enqueue(cmd)
	}
}

// writeLoop is the only goroutine writing to the connection.
func (s *Service) writeLoop(ctx context.Context, sess *session) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case data := <-sess.sendCh:
			wctx, cancel := context.WithTimeout(ctx, s.config.WriteTimeout)
			err := sess.conn.Write(wctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				return fmt.Errorf("write: %w", err)
			}
		}
	}
}

// transition moves to state if gen is still current. sess becomes the live
// session (nil clears it). It reports whether the transition applied.
func (s *Service) transition(gen uint64, state domain.ConnectionState, reason string, sess *session) bool {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return false
	}
	s.sess = sess
	if !state.Live() {
		s.cancel = nil
	}
	s.status = domain.ConnectionStatus{
		State:  state,
		URI:    s.status.URI,
		Reason: reason,
		Since:  time.Now(),
	}
	status := s.status
	s.mu.Unlock()

	s.publish(status)
	return true
}

func (s *Service) publish(status domain.ConnectionStatus) {
	s.bus.Publish(context.Background(), domain.NewEvent(domain.EventConnectionStateChanged, domain.ConnectionEvent{
		URI:    status.URI,
		State:  status.State,
		Reason: status.Reason,
	}))
}
