package wa

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"wablast/internal/metrics"
	"wablast/internal/model"
	"wablast/internal/notify"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeSession struct {
	h Handler

	mu         sync.Mutex
	closed     bool
	loggedOut  bool
	texts      []string
	registered bool
}

func (f *fakeSession) Start(ctx context.Context) error { return nil }

func (f *fakeSession) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeSession) Logout(ctx context.Context) error {
	f.mu.Lock()
	f.loggedOut = true
	f.mu.Unlock()
	return nil
}

func (f *fakeSession) IsRegistered(ctx context.Context, addr string) (bool, error) {
	return f.registered, nil
}

func (f *fakeSession) OpenConversation(ctx context.Context, addr string) (model.Conversation, error) {
	return model.Conversation{ID: addr}, nil
}

func (f *fakeSession) SendPresence(ctx context.Context, conv model.Conversation, p model.Presence) error {
	return nil
}

func (f *fakeSession) SendText(ctx context.Context, addr, text string) error {
	f.mu.Lock()
	f.texts = append(f.texts, text)
	f.mu.Unlock()
	return nil
}

func (f *fakeSession) SendMedia(ctx context.Context, addr string, a model.Attachment, caption string) error {
	return nil
}

func (f *fakeSession) RecentConversations(ctx context.Context, limit int) ([]model.Conversation, error) {
	return nil, nil
}

func (f *fakeSession) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type fakeDriver struct {
	mu       sync.Mutex
	sessions []*fakeSession
	failNext int
	calls    int
}

func (d *fakeDriver) factory(ctx context.Context, h Handler) (Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if d.failNext > 0 {
		d.failNext--
		return nil, errors.New("boom")
	}
	s := &fakeSession{h: h, registered: true}
	d.sessions = append(d.sessions, s)
	return s, nil
}

func (d *fakeDriver) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sessions)
}

func (d *fakeDriver) last() *fakeSession {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sessions[len(d.sessions)-1]
}

type recorder struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recorder) Emit(e notify.Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recorder) count(typ string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Type == typ {
			n++
		}
	}
	return n
}

func newTestSupervisor(t *testing.T, d *fakeDriver) (*Supervisor, *recorder, *metrics.Metrics) {
	t.Helper()
	rec := &recorder{}
	m := metrics.New()
	sup := NewSupervisor(d.factory, rec, zap.NewNop(), m, 20*time.Millisecond)
	return sup, rec, m
}

func TestSupervisorConnectsAndDelegates(t *testing.T) {
	d := &fakeDriver{}
	sup, rec, _ := newTestSupervisor(t, d)
	sup.Start(context.Background())
	defer sup.Stop()

	require.Equal(t, 1, d.count())
	assert.Equal(t, StateConnecting, sup.Status().State)

	_, err := sup.IsRegistered(context.Background(), "15551234567@s.whatsapp.net")
	assert.ErrorIs(t, err, ErrNotConnected)

	sess := d.last()
	sess.h.OnQR("qr-payload")
	st := sup.Status()
	assert.Equal(t, StateAwaitingScan, st.State)
	assert.Equal(t, "qr-payload", st.QR)
	greet := sup.Greeting()
	require.Len(t, greet, 2)
	assert.Equal(t, notify.TypeQR, greet[1].Type)

	sess.h.OnConnected()
	require.True(t, sup.IsReady())
	assert.Equal(t, 1, rec.count(notify.TypeAuthenticated))
	assert.Empty(t, sup.Status().QR)

	ok, err := sup.IsRegistered(context.Background(), "15551234567@s.whatsapp.net")
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, sup.SendText(context.Background(), "15551234567@s.whatsapp.net", "hi"))
	assert.Equal(t, []string{"hi"}, sess.texts)
}

func TestSupervisorRestartsOnceForOverlappingDisconnects(t *testing.T) {
	d := &fakeDriver{}
	sup, rec, m := newTestSupervisor(t, d)
	var downs atomic.Int32
	sup.OnDown(func(string) { downs.Add(1) })
	sup.Start(context.Background())
	defer sup.Stop()

	first := d.last()
	first.h.OnConnected()
	require.True(t, sup.IsReady())

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			first.h.OnDisconnected("connection lost")
		}()
	}
	wg.Wait()
	first.h.OnAuthFailure("bad session")

	assert.EqualValues(t, 1, downs.Load())
	assert.True(t, first.isClosed())
	assert.False(t, sup.IsReady())
	assert.Equal(t, 1, rec.count(notify.TypeShowQR))

	_, err := sup.RecentConversations(context.Background(), 10)
	assert.ErrorIs(t, err, ErrNotConnected)

	require.Eventually(t, func() bool { return d.count() == 2 }, time.Second, 5*time.Millisecond)
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 2, d.count())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ChannelRestarts))

	// Callbacks from the replaced session are ignored.
	first.h.OnConnected()
	assert.False(t, sup.IsReady())
	first.h.OnDisconnected("late")
	assert.EqualValues(t, 1, downs.Load())

	d.last().h.OnConnected()
	assert.True(t, sup.IsReady())
}

func TestSupervisorRetriesAfterInitFailure(t *testing.T) {
	d := &fakeDriver{failNext: 1}
	sup, _, _ := newTestSupervisor(t, d)
	var reasons []string
	var mu sync.Mutex
	sup.OnDown(func(r string) {
		mu.Lock()
		reasons = append(reasons, r)
		mu.Unlock()
	})
	sup.Start(context.Background())
	defer sup.Stop()

	require.Eventually(t, func() bool { return d.count() == 1 }, time.Second, 5*time.Millisecond)
	mu.Lock()
	require.Len(t, reasons, 1)
	assert.Contains(t, reasons[0], "Initialization failed")
	mu.Unlock()
	assert.Equal(t, StateConnecting, sup.Status().State)
}

func TestSupervisorLogout(t *testing.T) {
	d := &fakeDriver{}
	sup, _, _ := newTestSupervisor(t, d)
	sup.Start(context.Background())
	defer sup.Stop()

	first := d.last()
	first.h.OnConnected()
	require.NoError(t, sup.Logout(context.Background()))
	assert.True(t, first.loggedOut)
	assert.True(t, first.isClosed())
	assert.False(t, sup.IsReady())
	require.Eventually(t, func() bool { return d.count() == 2 }, time.Second, 5*time.Millisecond)
}

func TestSupervisorStopCancelsPendingRestart(t *testing.T) {
	d := &fakeDriver{}
	rec := &recorder{}
	sup := NewSupervisor(d.factory, rec, zap.NewNop(), nil, time.Hour)
	sup.Start(context.Background())

	d.last().h.OnDisconnected("gone")
	sup.Stop()
	assert.Equal(t, 1, d.count())
	assert.Equal(t, StateDisconnected, sup.Status().State)
}
