package campaign

import (
	"context"
	"math/rand/v2"
	"time"
)

// typingRate is the simulated typing speed in characters per millisecond.
const typingRate = 0.05

// Pacing holds the fixed human-like spacings of the dispatcher. The
// configurable ranges live in model.CampaignConfig.
type Pacing struct {
	PasteDelay         time.Duration
	AttachSpacing      time.Duration
	TemplateSpacingMin time.Duration
	TemplateSpacingMax time.Duration
	ReadingIdleMin     time.Duration
	ReadingIdleMax     time.Duration
	ReadingTyping      time.Duration
}

// DefaultPacing mirrors the spacings of a person working the app by hand.
var DefaultPacing = Pacing{
	PasteDelay:         500 * time.Millisecond,
	AttachSpacing:      time.Second,
	TemplateSpacingMin: time.Second,
	TemplateSpacingMax: 3 * time.Second,
	ReadingIdleMin:     5 * time.Second,
	ReadingIdleMax:     15 * time.Second,
	ReadingTyping:      2 * time.Second,
}

// between returns a uniformly random duration in [min, max].
func between(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + rand.N(max-min+1)
}

// typingDelay is proportional to the text length, clamped to [min, max].
func typingDelay(text string, min, max time.Duration) time.Duration {
	d := time.Duration(float64(len([]rune(text)))/typingRate) * time.Millisecond
	if d > max {
		d = max
	}
	if d < min {
		d = min
	}
	return d
}

// sleep waits for d unless the run bound to epoch is interrupted or ctx ends.
// It reports whether the run must stop, checked after the wait.
func (c *Controller) sleep(ctx context.Context, epoch uint64, d time.Duration) bool {
	wake, halted := c.state.waitHandle(epoch)
	if halted || ctx.Err() != nil {
		return true
	}
	if d > 0 {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-t.C:
		case <-wake:
		case <-ctx.Done():
		}
	}
	return c.state.halted(epoch) || ctx.Err() != nil
}

func (c *Controller) sleepRange(ctx context.Context, epoch uint64, min, max time.Duration) bool {
	return c.sleep(ctx, epoch, between(min, max))
}
