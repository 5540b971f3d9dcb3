// Package notify carries progress events from the engine to whoever is watching.
package notify

import (
	"sync"

	"go.uber.org/zap"
)

// Event types pushed to UI clients.
const (
	TypeStatus         = "status"
	TypeQR             = "qr"
	TypeShowQR         = "show_qr"
	TypeAuthenticated  = "authenticated"
	TypeCampaignState  = "campaignState"
	TypeLog            = "log"
	TypeBatchComplete  = "batchComplete"
	TypeCampaignPaused = "campaignPaused"
	TypeStatsUpdated   = "statsUpdated"
)

// Event is one push notification.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// BatchComplete is the payload of a batchComplete event.
type BatchComplete struct {
	NextBatch int `json:"nextBatch"`
}

// Sink receives events synchronously. Implementations must not block for long.
type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

func (f SinkFunc) Emit(e Event) { f(e) }

// Discard drops every event.
var Discard Sink = SinkFunc(func(Event) {})

// Multi fans out to every sink in order.
type Multi struct {
	mu    sync.RWMutex
	sinks []Sink
}

func NewMulti(sinks ...Sink) *Multi {
	return &Multi{sinks: sinks}
}

// Add registers another sink.
func (m *Multi) Add(s Sink) {
	m.mu.Lock()
	m.sinks = append(m.sinks, s)
	m.mu.Unlock()
}

func (m *Multi) Emit(e Event) {
	m.mu.RLock()
	sinks := m.sinks
	m.mu.RUnlock()
	for _, s := range sinks {
		s.Emit(e)
	}
}

// LogSink writes log and status events to zap.
type LogSink struct {
	Logger *zap.Logger
}

func (l LogSink) Emit(e Event) {
	switch e.Type {
	case TypeLog, TypeStatus, TypeCampaignPaused:
		l.Logger.Info("event", zap.String("type", e.Type), zap.Any("data", e.Data))
	case TypeBatchComplete, TypeStatsUpdated, TypeAuthenticated:
		l.Logger.Debug("event", zap.String("type", e.Type), zap.Any("data", e.Data))
	}
}

// Log builds a free-text log event.
func Log(msg string) Event { return Event{Type: TypeLog, Data: msg} }

// Status builds a connectivity status event.
func Status(msg string) Event { return Event{Type: TypeStatus, Data: msg} }
