package toolbox

import (
	"context"
	"fmt"
	"os"
	"time"

	robfigcron "github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Janitor periodically removes staging directories left behind by
// interrupted installs.
type Janitor struct {
	store    *Store
	schedule string
	ttl      time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

func NewJanitor(store *Store, schedule string, ttl time.Duration, logger *zap.Logger) *Janitor {
	if schedule == "" {
		schedule = "@every 10m"
	}
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Janitor{
		store:    store,
		schedule: schedule,
		ttl:      ttl,
		logger:   logger.Named("toolbox_janitor"),
		now:      time.Now,
	}
}

// Sweep removes staging directories older than the TTL and returns how many
// were removed.
func (j *Janitor) Sweep() int {
	dirs, err := j.store.StagingDirs()
	if err != nil {
		j.logger.Warn("list staging dirs", zap.Error(err))
		return 0
	}
	removed := 0
	cutoff := j.now().Add(-j.ttl)
	for path, mod := range dirs {
		if mod.After(cutoff) {
			continue
		}
		if err := os.RemoveAll(path); err != nil {
			j.logger.Warn("remove staging dir", zap.String("path", path), zap.Error(err))
			continue
		}
		removed++
	}
	if removed > 0 {
		j.logger.Info("staging dirs swept", zap.Int("removed", removed))
	}
	return removed
}

// Run sweeps once, then on the cron schedule until ctx is done.
func (j *Janitor) Run(ctx context.Context) error {
	c := robfigcron.New()
	if _, err := c.AddFunc(j.schedule, func() { j.Sweep() }); err != nil {
		return fmt.Errorf("janitor schedule %q: %w", j.schedule, err)
	}
	j.Sweep()
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}
