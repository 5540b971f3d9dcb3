package campaign

import (
	"sync"

	"wablast/internal/model"
)

// State is the single live campaign record. The zero value is an idle campaign.
// All fields are guarded by mu.
type State struct {
	mu sync.Mutex

	group    string // empty for ad-hoc uploads
	reportID string
	runID    string

	recipients []model.Recipient
	templates  []model.Template
	cfg        model.CampaignConfig

	current    int
	startIndex int
	batchIndex int

	day       string
	sentToday int
	sent      int
	failed    int

	running bool
	paused  bool

	// starting is set while Start resolves contacts and templates.
	starting bool

	report       []model.ReportRow
	statsFlushed int

	// epoch changes on every pause, resume and stop. A dispatcher run is bound
	// to the epoch it was launched with and halts once it differs.
	epoch       uint64
	wake        chan struct{}
	dispatching int
}

// Snapshot returns the externally visible view of the campaign.
func (s *State) Snapshot() model.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *State) snapshotLocked() model.Snapshot {
	return model.Snapshot{
		IsRunning: s.running,
		IsPaused:  s.paused,
		Sent:      s.sent,
		Failed:    s.failed,
		Total:     len(s.recipients),
		Current:   s.current,
	}
}

// interruptLocked starts a new epoch and wakes every pending wait.
func (s *State) interruptLocked() {
	s.epoch++
	if s.wake != nil {
		close(s.wake)
	}
	s.wake = make(chan struct{})
}

func (s *State) haltedLocked(epoch uint64) bool {
	return !s.running || s.paused || epoch != s.epoch
}

func (s *State) halted(epoch uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.haltedLocked(epoch)
}

// waitHandle returns the channel closed on the next interrupt, or halted=true
// if the run bound to epoch must stop already.
func (s *State) waitHandle(epoch uint64) (<-chan struct{}, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.wake == nil {
		s.wake = make(chan struct{})
	}
	return s.wake, s.haltedLocked(epoch)
}

// pending is the unflushed part of a campaign: report rows and the sent delta
// not yet added to the aggregate stats.
type pending struct {
	reportID string
	group    string
	current  int
	rows     []model.ReportRow
	sent     int
}

func (s *State) takePendingLocked() pending {
	p := pending{
		reportID: s.reportID,
		group:    s.group,
		current:  s.current,
		rows:     s.report,
		sent:     s.sent - s.statsFlushed,
	}
	s.report = nil
	s.statsFlushed = s.sent
	return p
}
