package wa

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"wablast/internal/metrics"
	"wablast/internal/model"
	"wablast/internal/notify"
)

// State of the channel connection.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateAwaitingScan State = "awaiting_scan"
	StateConnected    State = "connected"
)

var allStates = []string{string(StateDisconnected), string(StateConnecting), string(StateAwaitingScan), string(StateConnected)}

// DefaultCooldown is the wait between tearing a session down and connecting again.
const DefaultCooldown = 5 * time.Second

var ErrNotConnected = errors.New("channel not connected")

// Handler receives lifecycle callbacks from a Session.
type Handler interface {
	OnLoading(percent int)
	OnQR(code string)
	OnConnected()
	OnAuthFailure(reason string)
	OnDisconnected(reason string)
}

// Session is one live connection to the messaging network.
type Session interface {
	// Start begins connecting. Progress is reported through the Handler.
	Start(ctx context.Context) error
	Close() error
	Logout(ctx context.Context) error

	IsRegistered(ctx context.Context, addr string) (bool, error)
	OpenConversation(ctx context.Context, addr string) (model.Conversation, error)
	SendPresence(ctx context.Context, conv model.Conversation, p model.Presence) error
	SendText(ctx context.Context, addr, text string) error
	SendMedia(ctx context.Context, addr string, a model.Attachment, caption string) error
	RecentConversations(ctx context.Context, limit int) ([]model.Conversation, error)
}

// Factory creates a fresh Session bound to h.
type Factory func(ctx context.Context, h Handler) (Session, error)

// Status is a point-in-time view of the supervisor.
type Status struct {
	State State  `json:"state"`
	Text  string `json:"text"`
	QR    string `json:"qr,omitempty"`
}

// Supervisor owns the single channel session: it connects, watches for
// disconnects and auth failures, and restarts after a cooldown.
type Supervisor struct {
	factory  Factory
	sink     notify.Sink
	logger   *zap.Logger
	metrics  *metrics.Metrics
	cooldown time.Duration

	mu         sync.Mutex
	ctx        context.Context
	cancel     context.CancelFunc
	state      State
	session    Session
	gen        uint64
	restarting bool
	status     string
	qr         string
	onDown     []func(reason string)
	wg         sync.WaitGroup
}

func NewSupervisor(factory Factory, sink notify.Sink, logger *zap.Logger, m *metrics.Metrics, cooldown time.Duration) *Supervisor {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	if sink == nil {
		sink = notify.Discard
	}
	return &Supervisor{
		factory:  factory,
		sink:     sink,
		logger:   logger,
		metrics:  m,
		cooldown: cooldown,
		state:    StateDisconnected,
	}
}

// OnDown registers fn to run whenever the session is lost.
func (s *Supervisor) OnDown(fn func(reason string)) {
	s.mu.Lock()
	s.onDown = append(s.onDown, fn)
	s.mu.Unlock()
}

// Start binds the supervisor to ctx and connects.
func (s *Supervisor) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()
	s.Connect()
}

// Stop disconnects and waits for background restarts to finish.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	sess := s.session
	s.session = nil
	s.gen++
	s.state = StateDisconnected
	s.mu.Unlock()
	if sess != nil {
		_ = sess.Close()
	}
	s.wg.Wait()
}

// Connect starts a fresh session. It is a no-op unless the channel is disconnected.
func (s *Supervisor) Connect() {
	s.mu.Lock()
	if s.state != StateDisconnected || s.ctx == nil || s.ctx.Err() != nil {
		s.mu.Unlock()
		return
	}
	s.gen++
	gen := s.gen
	ctx := s.ctx
	s.qr = ""
	s.setStateLocked(StateConnecting)
	s.mu.Unlock()

	s.logger.Info("initializing new channel session", zap.Uint64("generation", gen))
	s.setStatus("Initializing client...")

	sess, err := s.factory(ctx, &sessionHandler{s: s, gen: gen})
	if err != nil {
		s.logger.Error("create session", zap.Error(err))
		s.down(gen, "Initialization failed: "+err.Error())
		return
	}
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		_ = sess.Close()
		return
	}
	s.session = sess
	s.mu.Unlock()

	s.setStatus("Launching client...")
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := sess.Start(ctx); err != nil {
			s.logger.Error("start session", zap.Error(err))
			s.down(gen, "Initialization failed: "+err.Error())
		}
	}()
}

// Logout unlinks the current device; the supervisor then restarts and asks for a new scan.
func (s *Supervisor) Logout(ctx context.Context) error {
	s.mu.Lock()
	sess, gen := s.session, s.gen
	s.mu.Unlock()
	if sess == nil {
		return ErrNotConnected
	}
	err := sess.Logout(ctx)
	s.down(gen, "LOGOUT")
	return err
}

// down tears the session down and schedules exactly one reconnect. Events from
// stale sessions and events arriving while a restart is pending are dropped.
func (s *Supervisor) down(gen uint64, reason string) {
	s.mu.Lock()
	if s.restarting || gen != s.gen || s.ctx == nil {
		s.mu.Unlock()
		return
	}
	s.restarting = true
	old := s.session
	s.session = nil
	s.qr = ""
	s.setStateLocked(StateDisconnected)
	hooks := append([]func(string){}, s.onDown...)
	ctx := s.ctx
	s.mu.Unlock()

	s.logger.Warn("channel down, restarting", zap.String("reason", reason), zap.Duration("cooldown", s.cooldown))
	s.metrics.IncRestart()
	s.setStatus("Client disconnected. Restarting...")
	s.sink.Emit(notify.Event{Type: notify.TypeShowQR})
	for _, h := range hooks {
		h(reason)
	}
	if old != nil {
		if err := old.Close(); err != nil {
			s.logger.Warn("destroy session", zap.Error(err))
		}
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		t := time.NewTimer(s.cooldown)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
		}
		s.mu.Lock()
		s.restarting = false
		s.mu.Unlock()
		s.Connect()
	}()
}

// IsReady reports whether the channel is connected.
func (s *Supervisor) IsReady() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateConnected && s.session != nil
}

// Status returns the current state, status text and pending QR payload.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{State: s.state, Text: s.status, QR: s.qr}
}

// Greeting is what a newly connected UI client needs to catch up.
func (s *Supervisor) Greeting() []notify.Event {
	st := s.Status()
	switch st.State {
	case StateConnected:
		return []notify.Event{notify.Status("Connected"), {Type: notify.TypeAuthenticated}}
	case StateAwaitingScan:
		return []notify.Event{notify.Status(st.Text), {Type: notify.TypeQR, Data: st.QR}}
	default:
		return []notify.Event{notify.Status("Initializing client... Please wait.")}
	}
}

func (s *Supervisor) current() (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateConnected || s.session == nil {
		return nil, ErrNotConnected
	}
	return s.session, nil
}

func (s *Supervisor) IsRegistered(ctx context.Context, addr string) (bool, error) {
	sess, err := s.current()
	if err != nil {
		return false, err
	}
	return sess.IsRegistered(ctx, addr)
}

func (s *Supervisor) OpenConversation(ctx context.Context, addr string) (model.Conversation, error) {
	sess, err := s.current()
	if err != nil {
		return model.Conversation{}, err
	}
	return sess.OpenConversation(ctx, addr)
}

func (s *Supervisor) SendPresence(ctx context.Context, conv model.Conversation, p model.Presence) error {
	sess, err := s.current()
	if err != nil {
		return err
	}
	return sess.SendPresence(ctx, conv, p)
}

func (s *Supervisor) SendText(ctx context.Context, addr, text string) error {
	sess, err := s.current()
	if err != nil {
		return err
	}
	return sess.SendText(ctx, addr, text)
}

func (s *Supervisor) SendMedia(ctx context.Context, addr string, a model.Attachment, caption string) error {
	sess, err := s.current()
	if err != nil {
		return err
	}
	return sess.SendMedia(ctx, addr, a, caption)
}

func (s *Supervisor) RecentConversations(ctx context.Context, limit int) ([]model.Conversation, error) {
	sess, err := s.current()
	if err != nil {
		return nil, err
	}
	return sess.RecentConversations(ctx, limit)
}

func (s *Supervisor) setStateLocked(st State) {
	s.state = st
	s.metrics.SetChannelState(string(st), allStates)
}

func (s *Supervisor) setStatus(text string) {
	s.mu.Lock()
	s.status = text
	s.mu.Unlock()
	s.sink.Emit(notify.Status(text))
}

// sessionHandler ties callbacks to the session generation that produced them.
type sessionHandler struct {
	s   *Supervisor
	gen uint64
}

func (h *sessionHandler) live() bool {
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	return h.gen == h.s.gen
}

func (h *sessionHandler) OnLoading(percent int) {
	if h.live() {
		h.s.setStatus(fmt.Sprintf("Connecting to WhatsApp... (%d%%)", percent))
	}
}

func (h *sessionHandler) OnQR(code string) {
	s := h.s
	s.mu.Lock()
	if h.gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.qr = code
	s.setStateLocked(StateAwaitingScan)
	s.mu.Unlock()
	s.logger.Info("QR received, waiting for scan")
	s.setStatus("QR code received. Please scan.")
	s.sink.Emit(notify.Event{Type: notify.TypeQR, Data: code})
}

func (h *sessionHandler) OnConnected() {
	s := h.s
	s.mu.Lock()
	if h.gen != s.gen || s.session == nil {
		s.mu.Unlock()
		return
	}
	s.qr = ""
	s.setStateLocked(StateConnected)
	s.mu.Unlock()
	s.logger.Info("channel connected")
	s.setStatus("Connected")
	s.sink.Emit(notify.Event{Type: notify.TypeAuthenticated})
}

func (h *sessionHandler) OnAuthFailure(reason string) {
	h.s.logger.Error("authentication failure", zap.String("reason", reason))
	h.s.down(h.gen, "Authentication Failure: "+reason)
}

func (h *sessionHandler) OnDisconnected(reason string) {
	h.s.down(h.gen, reason)
}
