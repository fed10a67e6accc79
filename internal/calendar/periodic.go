package calendar

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// PeriodicTask runs a function on a fixed interval until cancelled.
// A run that is still going when the next one is due is skipped.
type PeriodicTask struct {
	cron  *cron.Cron
	entry cron.EntryID
	once  sync.Once
}

// StartPeriodic schedules onTick every interval and starts the timer.
func StartPeriodic(interval time.Duration, onTick func()) (*PeriodicTask, error) {
	if interval < time.Second {
		return nil, fmt.Errorf("tick interval %s is shorter than one second", interval)
	}

	logger := cron.PrintfLogger(log.Default())
	c := cron.New(
		cron.WithSeconds(),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	entry, err := c.AddFunc(intervalToCronSpec(interval), onTick)
	if err != nil {
		return nil, fmt.Errorf("scheduling periodic task: %w", err)
	}

	c.Start()
	return &PeriodicTask{cron: c, entry: entry}, nil
}

// Cancel stops the timer and waits for a running tick to finish.
// It is safe to call more than once.
func (p *PeriodicTask) Cancel() {
	p.once.Do(func() {
		ctx := p.cron.Stop()
		<-ctx.Done()
	})
}

// Next returns the time of the next scheduled run.
func (p *PeriodicTask) Next() *time.Time {
	entry := p.cron.Entry(p.entry)
	if entry.Next.IsZero() {
		return nil
	}
	return &entry.Next
}

// intervalToCronSpec converts an interval to a cron spec.
func intervalToCronSpec(d time.Duration) string {
	return "@every " + d.Truncate(time.Second).String()
}
