// Package campaign runs one message campaign at a time: it owns the campaign
// state, the start/pause/resume/end lifecycle and the batch dispatcher.
package campaign

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"wablast/internal/contacts"
	"wablast/internal/metrics"
	"wablast/internal/model"
	"wablast/internal/notify"
	"wablast/internal/report"
)

var (
	ErrAlreadyRunning = errors.New("a campaign is already running")
	ErrNoContacts     = errors.New("no valid contacts found, make sure the file has a column header named 'number'")
	ErrNoTemplates    = errors.New("no valid templates selected")
	ErrEndedEarly     = errors.New("campaign ended before it started")
)

// Channel is the messaging capability the dispatcher drives.
type Channel interface {
	IsRegistered(ctx context.Context, addr string) (bool, error)
	OpenConversation(ctx context.Context, addr string) (model.Conversation, error)
	SendPresence(ctx context.Context, conv model.Conversation, p model.Presence) error
	SendText(ctx context.Context, addr, text string) error
	SendMedia(ctx context.Context, addr string, a model.Attachment, caption string) error
	RecentConversations(ctx context.Context, limit int) ([]model.Conversation, error)
}

// MediaStore resolves attachment references. A missing file yields an error
// wrapping fs.ErrNotExist.
type MediaStore interface {
	Open(ref string) (model.Attachment, error)
}

type TemplateStore interface {
	GetTemplate(ctx context.Context, id string) (model.Template, error)
}

type ProgressStore interface {
	Progress(ctx context.Context, group string) (int, error)
	SaveProgress(ctx context.Context, group string, idx int) error
}

type Reporter interface {
	SaveReport(ctx context.Context, id string, rows []model.ReportRow) error
	UpdateStats(ctx context.Context, sent int) error
}

// Deps are the collaborators of a Controller.
type Deps struct {
	Channel   Channel
	Templates TemplateStore
	Media     MediaStore
	Progress  ProgressStore
	Reports   Reporter
	Address   Addresser
	Sink      notify.Sink
	Logger    *zap.Logger
	Metrics   *metrics.Metrics
}

// Request starts a campaign. Group names a stored contact group and makes the
// run resumable; it is empty for ad-hoc uploads.
type Request struct {
	Config      model.CampaignConfig
	TemplateIDs []string
	Contacts    contacts.Source
	Group       string
}

// Controller owns the campaign state and its lifecycle operations.
type Controller struct {
	Deps
	Pacing Pacing
	Now    func() time.Time

	state  *State
	ctx    context.Context
	cancel context.CancelFunc
	runMu  sync.Mutex
	wg     sync.WaitGroup
}

// New creates an idle controller. Dispatcher runs are bound to ctx.
func New(ctx context.Context, deps Deps) *Controller {
	if deps.Sink == nil {
		deps.Sink = notify.Discard
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(ctx)
	return &Controller{
		Deps:   deps,
		Pacing: DefaultPacing,
		Now:    time.Now,
		state:  &State{},
		ctx:    ctx,
		cancel: cancel,
	}
}

// State returns the live campaign record.
func (c *Controller) State() *State { return c.state }

// Snapshot returns the current campaign state.
func (c *Controller) Snapshot() model.Snapshot { return c.state.Snapshot() }

// Start validates the request, resolves contacts and templates and launches
// the first batch. It fails with ErrAlreadyRunning while another campaign runs.
func (c *Controller) Start(ctx context.Context, req Request) error {
	st := c.state
	st.mu.Lock()
	if st.running {
		st.mu.Unlock()
		c.emit(notify.Log("A campaign is already running."))
		return ErrAlreadyRunning
	}
	st.running = true
	st.starting = true
	st.paused = false
	// An End or a later Start moves the epoch on; the request is then void.
	st.interruptLocked()
	startEpoch := st.epoch
	st.mu.Unlock()

	recipients, err := c.loadRecipients(ctx, req.Contacts)
	if err != nil {
		return c.abort(startEpoch, err)
	}
	templates, err := c.resolveTemplates(ctx, req.TemplateIDs)
	if err != nil {
		return c.abort(startEpoch, err)
	}
	start := 0
	if req.Group != "" {
		if start, err = c.Progress.Progress(ctx, req.Group); err != nil {
			return c.abort(startEpoch, fmt.Errorf("load progress: %w", err))
		}
		start = min(max(start, 0), len(recipients))
	}

	cfg := req.Config
	if cfg.WarmUp.Enabled {
		cfg.DailyLimit = cfg.WarmUp.Start
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = len(recipients)
	}

	now := c.Now()
	reportID := report.UploadReportID(now)
	if req.Group != "" {
		reportID = report.GroupReportID(req.Group)
	}
	runID := uuid.NewString()

	st.mu.Lock()
	if !st.running || st.epoch != startEpoch {
		st.mu.Unlock()
		return ErrEndedEarly
	}
	st.starting = false
	st.group = req.Group
	st.reportID = reportID
	st.runID = runID
	st.recipients = recipients
	st.templates = templates
	st.cfg = cfg
	st.current, st.startIndex, st.batchIndex = start, start, 0
	st.day, st.sentToday = now.Format(time.DateOnly), 0
	st.sent, st.failed = 0, 0
	st.report, st.statsFlushed = nil, 0
	st.interruptLocked()
	epoch := st.epoch
	snap := st.snapshotLocked()
	st.dispatching++
	st.mu.Unlock()

	c.Logger.Info("campaign started",
		zap.String("run", runID),
		zap.String("group", req.Group),
		zap.String("report", reportID),
		zap.Int("recipients", len(recipients)),
		zap.Int("templates", len(templates)),
		zap.Int("start_index", start),
		zap.Int("batch_size", cfg.BatchSize),
		zap.Int("daily_limit", cfg.DailyLimit),
	)
	c.Metrics.IncCampaign()
	c.Metrics.SetRunning(true)
	if start > 0 {
		c.emit(notify.Log(fmt.Sprintf("Resuming campaign for group %s from contact #%d.", req.Group, start+1)))
	}
	c.emit(notify.Event{Type: notify.TypeCampaignState, Data: snap})
	c.launch(epoch)
	return nil
}

func (c *Controller) loadRecipients(ctx context.Context, src contacts.Source) ([]model.Recipient, error) {
	if src == nil {
		return nil, ErrNoContacts
	}
	list, err := src.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoContacts, err)
	}
	if len(list) == 0 {
		return nil, ErrNoContacts
	}
	return list, nil
}

// resolveTemplates loads ids in order, keeping the first occurrence of each
// and skipping ids the store does not know.
func (c *Controller) resolveTemplates(ctx context.Context, ids []string) ([]model.Template, error) {
	seen := make(map[string]bool, len(ids))
	var out []model.Template
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		t, err := c.Templates.GetTemplate(ctx, id)
		if err != nil {
			c.Logger.Warn("skip template", zap.String("id", id), zap.Error(err))
			continue
		}
		out = append(out, t)
	}
	if len(out) == 0 {
		return nil, ErrNoTemplates
	}
	return out, nil
}

func (c *Controller) abort(epoch uint64, err error) error {
	st := c.state
	st.mu.Lock()
	if st.epoch != epoch {
		st.mu.Unlock()
		return ErrEndedEarly
	}
	st.running = false
	st.starting = false
	st.paused = false
	snap := st.snapshotLocked()
	st.mu.Unlock()
	c.Logger.Warn("campaign rejected", zap.Error(err))
	c.emit(notify.Log("Error: " + err.Error()))
	c.emit(notify.Event{Type: notify.TypeCampaignState, Data: snap})
	return err
}

// Pause takes effect at the dispatcher's next checkpoint.
func (c *Controller) Pause() {
	st := c.state
	st.mu.Lock()
	if !st.running || st.starting || st.paused {
		st.mu.Unlock()
		return
	}
	st.paused = true
	st.interruptLocked()
	snap := st.snapshotLocked()
	st.mu.Unlock()
	c.Logger.Info("campaign paused")
	c.emit(notify.Log("Campaign paused."))
	c.emit(notify.Event{Type: notify.TypeCampaignState, Data: snap})
}

// Resume continues from the current cursor.
func (c *Controller) Resume() {
	st := c.state
	st.mu.Lock()
	if !st.running || st.starting || !st.paused {
		st.mu.Unlock()
		return
	}
	st.paused = false
	st.interruptLocked()
	epoch := st.epoch
	snap := st.snapshotLocked()
	st.dispatching++
	st.mu.Unlock()
	c.Logger.Info("campaign resumed")
	c.emit(notify.Log("Campaign resumed."))
	c.emit(notify.Event{Type: notify.TypeCampaignState, Data: snap})
	c.launch(epoch)
}

// RequestNextBatch runs the next batch. It is a no-op unless the campaign is
// running, fully started, not paused and no batch is in progress.
func (c *Controller) RequestNextBatch() {
	st := c.state
	st.mu.Lock()
	if !st.running || st.starting || st.paused || st.dispatching > 0 {
		st.mu.Unlock()
		return
	}
	epoch := st.epoch
	st.dispatching++
	st.mu.Unlock()
	c.launch(epoch)
}

// End stops the campaign, flushes the report and stats and saves progress.
func (c *Controller) End() {
	c.stop("Campaign ended by user.")
}

// OnChannelDown stops a running campaign after the channel is lost.
func (c *Controller) OnChannelDown(reason string) {
	c.stop("Campaign stopped: channel disconnected (" + reason + ").")
}

func (c *Controller) stop(msg string) {
	st := c.state
	st.mu.Lock()
	if !st.running {
		st.mu.Unlock()
		return
	}
	st.running = false
	st.paused = false
	st.interruptLocked()
	if st.starting {
		// Nothing of the new campaign is installed yet; the fields still
		// belong to the previous one, which was flushed when it stopped.
		st.starting = false
		snap := st.snapshotLocked()
		st.mu.Unlock()
		c.Logger.Info("campaign cancelled while starting", zap.String("reason", msg))
		c.emit(notify.Log(msg))
		c.emit(notify.Event{Type: notify.TypeCampaignState, Data: snap})
		return
	}
	p := st.takePendingLocked()
	snap := st.snapshotLocked()
	st.mu.Unlock()

	c.Logger.Info("campaign stopped", zap.String("reason", msg), zap.Int("current", p.current))
	c.Metrics.SetRunning(false)
	c.emit(notify.Log(msg))
	c.flush(p)
	c.emit(notify.Event{Type: notify.TypeCampaignState, Data: snap})
}

// flush persists a pending report/stats delta and the group cursor.
func (c *Controller) flush(p pending) {
	ctx := context.WithoutCancel(c.ctx)
	if err := c.Reports.SaveReport(ctx, p.reportID, p.rows); err != nil {
		c.Logger.Error("save report", zap.String("report", p.reportID), zap.Error(err))
	}
	if p.sent > 0 || len(p.rows) > 0 {
		if err := c.Reports.UpdateStats(ctx, p.sent); err != nil {
			c.Logger.Error("update stats", zap.Error(err))
		}
	}
	if p.group != "" {
		if err := c.Progress.SaveProgress(ctx, p.group, p.current); err != nil {
			c.Logger.Error("save progress", zap.String("group", p.group), zap.Error(err))
		}
	}
}

// Wait blocks until every dispatcher run has returned.
func (c *Controller) Wait() { c.wg.Wait() }

// Close ends any running campaign and waits for the dispatcher.
func (c *Controller) Close() {
	c.End()
	c.cancel()
	c.Wait()
}

func (c *Controller) launch(epoch uint64) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.runMu.Lock()
		defer c.runMu.Unlock()
		c.dispatch(c.ctx, epoch)
	}()
}

func (c *Controller) emit(e notify.Event) {
	c.Sink.Emit(e)
}
