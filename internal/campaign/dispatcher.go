package campaign

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	"wablast/internal/model"
	"wablast/internal/notify"
)

// readingPool bounds the recent conversations considered for idle reading.
const readingPool = 10

// outcome of one recipient.
type outcome struct {
	number string
	status string
	// delivered counts message parts the channel accepted.
	delivered int
	halted    bool
}

// dispatch processes one batch starting at the current cursor. It returns at
// the first checkpoint where the run bound to epoch is paused or stopped.
func (c *Controller) dispatch(ctx context.Context, epoch uint64) {
	st := c.state
	finished := false
	finish := func() {
		if finished {
			return
		}
		finished = true
		st.mu.Lock()
		st.dispatching--
		st.mu.Unlock()
	}
	defer finish()

	st.mu.Lock()
	if st.haltedLocked(epoch) {
		st.mu.Unlock()
		return
	}
	run := st.runID
	first := st.current
	end := min(st.current+st.cfg.BatchSize, len(st.recipients))
	batch := st.batchIndex + 1
	cfg := st.cfg
	st.mu.Unlock()
	defer c.flushLate(run)

	c.emit(notify.Log(fmt.Sprintf("Starting to send batch #%d...", batch)))

	for i := first; i < end; i++ {
		if c.state.halted(epoch) || ctx.Err() != nil {
			c.logHalt(fmt.Sprintf("before processing contact #%d", i+1))
			return
		}
		if c.quotaReached() {
			return
		}

		st.mu.Lock()
		r := st.recipients[i]
		templates := st.templates
		force := i == st.startIndex
		total := len(st.recipients)
		st.mu.Unlock()

		c.emit(notify.Log(fmt.Sprintf("[%d/%d] Processing contact: %s", i+1, total, r.Number)))
		out := c.deliver(ctx, epoch, r, templates, cfg, force)
		if out.halted && out.delivered == 0 {
			c.logHalt(fmt.Sprintf("while processing %s", out.number))
			return
		}
		if out.halted {
			out.status = fmt.Sprintf("%sinterrupted after %d message(s)", model.StatusFailedPrefix, out.delivered)
		}
		c.record(ctx, run, i, r, out)

		if i+1 < end {
			d := between(cfg.MinDelay, cfg.MaxDelay)
			c.emit(notify.Log(fmt.Sprintf("-> Waiting for %s before next contact...", d.Round(time.Second))))
			if c.sleep(ctx, epoch, d) {
				c.logHalt("before next contact")
				return
			}
		}
	}

	st.mu.Lock()
	if st.haltedLocked(epoch) {
		st.mu.Unlock()
		return
	}
	st.batchIndex++
	batch = st.batchIndex
	if st.current >= len(st.recipients) {
		st.running = false
		st.paused = false
		st.interruptLocked()
		p := st.takePendingLocked()
		snap := st.snapshotLocked()
		st.mu.Unlock()

		c.Logger.Info("campaign finished", zap.Int("sent", snap.Sent), zap.Int("failed", snap.Failed))
		c.Metrics.SetRunning(false)
		c.emit(notify.Log("Campaign finished!"))
		c.flush(p)
		c.emit(notify.Event{Type: notify.TypeCampaignState, Data: snap})
		return
	}
	st.mu.Unlock()

	if cfg.SimulateReading {
		if c.simulateReading(ctx, epoch) {
			return
		}
	}
	finish()
	c.emit(notify.Log(fmt.Sprintf("Batch #%d complete. Waiting for user to start next batch.", batch)))
	c.emit(notify.Event{Type: notify.TypeBatchComplete, Data: notify.BatchComplete{NextBatch: batch + 1}})
}

// quotaReached pauses the campaign once today's sends hit the daily limit.
// The counter starts over when the calendar date changes.
func (c *Controller) quotaReached() bool {
	st := c.state
	st.mu.Lock()
	if today := c.Now().Format(time.DateOnly); today != st.day {
		st.day, st.sentToday = today, 0
	}
	if !st.running {
		st.mu.Unlock()
		return true
	}
	limit := st.cfg.DailyLimit
	if limit <= 0 || st.sentToday < limit {
		st.mu.Unlock()
		return false
	}
	st.paused = true
	st.interruptLocked()
	snap := st.snapshotLocked()
	st.mu.Unlock()

	c.Logger.Info("daily limit reached", zap.Int("limit", limit))
	c.emit(notify.Log(fmt.Sprintf("Daily limit of %d reached. Pausing campaign.", limit)))
	c.emit(notify.Event{Type: notify.TypeCampaignPaused, Data: "Daily limit reached."})
	c.emit(notify.Event{Type: notify.TypeCampaignState, Data: snap})
	return true
}

// deliver sends every template to one recipient. Failures become a
// "Failed: ..." status; they never abort the batch.
func (c *Controller) deliver(ctx context.Context, epoch uint64, r model.Recipient, templates []model.Template, cfg model.CampaignConfig, force bool) outcome {
	out := outcome{number: r.Number}
	fail := func(err error) outcome {
		c.emit(notify.Log(fmt.Sprintf("ERROR: Failed to send to %s: %v", out.number, err)))
		out.status = model.StatusFailedPrefix + err.Error()
		return out
	}

	addr, digits, err := c.Address.Address(r.Number)
	if err != nil {
		return fail(err)
	}
	out.number = digits

	ok, err := c.Channel.IsRegistered(ctx, addr)
	if err != nil {
		return fail(err)
	}
	if !ok {
		c.emit(notify.Log(fmt.Sprintf("-> Skipping %s: Not a WhatsApp number.", digits)))
		out.status = model.StatusNotReachable
		return out
	}
	conv, err := c.Channel.OpenConversation(ctx, addr)
	if err != nil {
		return fail(err)
	}

	seen := make(map[string]bool, len(templates))
	for ti, t := range templates {
		if seen[t.ID] {
			c.emit(notify.Log("-> Skipping duplicate template for this contact."))
			continue
		}
		seen[t.ID] = true
		if ti > 0 {
			if c.sleepRange(ctx, epoch, c.Pacing.TemplateSpacingMin, c.Pacing.TemplateSpacingMax) {
				out.halted = true
				return out
			}
		}

		text := personalize(t.Message, r.Name)
		// Forced typing covers the opening template only.
		halted, err := c.simulate(ctx, epoch, conv, text, cfg, force && ti == 0)
		if err != nil {
			return fail(err)
		}
		if halted {
			out.halted = true
			return out
		}

		sent, halted, err := c.sendTemplate(ctx, epoch, addr, t, text, cfg, ti == 0)
		out.delivered += sent
		if err != nil {
			return fail(err)
		}
		if halted {
			out.halted = true
			return out
		}
		c.emit(notify.Log("-> Message part sent successfully."))
	}
	c.emit(notify.Log(fmt.Sprintf("-> All messages for %s sent successfully.", digits)))
	out.status = model.StatusSent
	return out
}

// simulate shows typing for a length-proportional delay, or pauses briefly
// as if the text were pasted.
func (c *Controller) simulate(ctx context.Context, epoch uint64, conv model.Conversation, text string, cfg model.CampaignConfig, force bool) (bool, error) {
	typing := false
	switch cfg.SimulationStyle {
	case model.StyleTyping:
		typing = true
	case model.StyleRandom, "":
		typing = rand.Float64() > 0.3
	}
	if force {
		typing = true
		c.emit(notify.Log("-> First contact of campaign, forcing typing simulation."))
	}
	if !typing {
		c.emit(notify.Log("-> Simulating copy-paste..."))
		return c.sleep(ctx, epoch, c.Pacing.PasteDelay), nil
	}

	preview := []rune(text)
	if len(preview) > 20 {
		preview = preview[:20]
	}
	c.emit(notify.Log(fmt.Sprintf("-> Simulating typing for message: %q...", string(preview))))
	if err := c.Channel.SendPresence(ctx, conv, model.PresenceTyping); err != nil {
		return false, err
	}
	halted := c.sleep(ctx, epoch, typingDelay(text, cfg.MinTypingDelay, cfg.MaxTypingDelay))
	if err := c.Channel.SendPresence(context.WithoutCancel(ctx), conv, model.PresenceIdle); err != nil && !halted {
		return false, err
	}
	return halted, nil
}

// sendTemplate delivers one template. With attachments, only the first
// delivered attachment of the first template carries the text as caption;
// missing files are skipped. If none could be delivered the text goes alone.
func (c *Controller) sendTemplate(ctx context.Context, epoch uint64, addr string, t model.Template, text string, cfg model.CampaignConfig, first bool) (int, bool, error) {
	if len(t.Attachments) == 0 {
		c.emit(notify.Log("-> Sending text message..."))
		if err := c.Channel.SendText(ctx, addr, text); err != nil {
			return 0, false, err
		}
		c.Metrics.IncMessage()
		return 1, false, nil
	}

	d := between(cfg.MinAttachDelay, cfg.MaxAttachDelay)
	c.emit(notify.Log(fmt.Sprintf("-> Simulating file search for %s...", d)))
	if c.sleep(ctx, epoch, d) {
		return 0, true, nil
	}
	c.emit(notify.Log(fmt.Sprintf("-> Attaching %d media file(s)...", len(t.Attachments))))

	sent := 0
	for _, ref := range t.Attachments {
		a, err := c.Media.Open(ref)
		if errors.Is(err, fs.ErrNotExist) {
			c.Logger.Warn("attachment missing", zap.String("file", ref))
			continue
		}
		if err != nil {
			return sent, false, err
		}
		if sent > 0 {
			if c.sleep(ctx, epoch, c.Pacing.AttachSpacing) {
				return sent, true, nil
			}
		}
		caption := ""
		if first && sent == 0 {
			caption = text
		}
		if err := c.Channel.SendMedia(ctx, addr, a, caption); err != nil {
			return sent, false, err
		}
		c.Metrics.IncAttachment()
		sent++
	}
	if sent > 0 {
		return sent, false, nil
	}
	c.emit(notify.Log("-> No attachment available, sending text message..."))
	if err := c.Channel.SendText(ctx, addr, text); err != nil {
		return 0, false, err
	}
	c.Metrics.IncMessage()
	return 1, false, nil
}

// record stores the outcome of recipient i, advances the cursor and persists
// group progress. Outcomes of a run that was replaced by a new campaign are dropped.
func (c *Controller) record(ctx context.Context, run string, i int, r model.Recipient, out outcome) {
	st := c.state
	st.mu.Lock()
	if st.runID != run {
		st.mu.Unlock()
		c.Logger.Warn("dropping outcome of a replaced run", zap.String("run", run), zap.String("number", out.number))
		return
	}
	st.current = i + 1
	label := "failed"
	switch out.status {
	case model.StatusSent:
		st.sent++
		st.sentToday++
		label = "sent"
	case model.StatusNotReachable:
		st.failed++
		label = "unreachable"
	default:
		st.failed++
	}
	st.report = append(st.report, model.ReportRow{Number: out.number, Name: r.Name, Status: out.status})
	group := st.group
	snap := st.snapshotLocked()
	st.mu.Unlock()

	c.Metrics.IncRecipient(label)
	if group != "" {
		if err := c.Progress.SaveProgress(context.WithoutCancel(ctx), group, i+1); err != nil {
			c.Logger.Error("save progress", zap.String("group", group), zap.Int("index", i+1), zap.Error(err))
		}
	}
	c.emit(notify.Event{Type: notify.TypeCampaignState, Data: snap})
}

// simulateReading idles, then briefly shows typing in a random recent chat.
func (c *Controller) simulateReading(ctx context.Context, epoch uint64) bool {
	c.emit(notify.Log("SIMULATING: Pausing for idle activity..."))
	if c.sleepRange(ctx, epoch, c.Pacing.ReadingIdleMin, c.Pacing.ReadingIdleMax) {
		return true
	}
	chats, err := c.Channel.RecentConversations(ctx, readingPool)
	if err != nil {
		c.Logger.Warn("reading simulation", zap.Error(err))
		return c.state.halted(epoch)
	}
	if len(chats) == 0 {
		return false
	}
	chat := chats[rand.IntN(min(len(chats), readingPool))]
	c.emit(notify.Log(fmt.Sprintf("SIMULATING: Opening chat with %s", chat.Name)))
	if err := c.Channel.SendPresence(ctx, chat, model.PresenceTyping); err != nil {
		c.Logger.Warn("reading simulation", zap.Error(err))
		return c.state.halted(epoch)
	}
	halted := c.sleep(ctx, epoch, c.Pacing.ReadingTyping)
	if err := c.Channel.SendPresence(context.WithoutCancel(ctx), chat, model.PresenceIdle); err != nil {
		c.Logger.Warn("reading simulation", zap.Error(err))
	}
	return halted
}

// flushLate persists rows recorded after a stop already flushed, which happens
// when an in-flight send completes after the campaign was ended.
func (c *Controller) flushLate(run string) {
	st := c.state
	st.mu.Lock()
	if (st.running && !st.starting) || st.runID != run || (len(st.report) == 0 && st.sent == st.statsFlushed) {
		st.mu.Unlock()
		return
	}
	p := st.takePendingLocked()
	st.mu.Unlock()
	c.flush(p)
}

func (c *Controller) logHalt(where string) {
	st := c.state
	st.mu.Lock()
	paused, running := st.paused, st.running
	st.mu.Unlock()
	switch {
	case paused:
		c.emit(notify.Log("PAUSED: Campaign paused " + where + "."))
	case !running:
		c.emit(notify.Log("STOPPED: Campaign stopped " + where + "."))
	}
}
