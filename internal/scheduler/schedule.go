package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/user/isp-cabinet/internal/config"
)

// defaultScanInterval is used when neither the account nor the
// provider descriptor configures one.
const defaultScanInterval = 2 * time.Hour

// schedule computes when an account polls next: either a fixed
// interval or a cron expression.
type schedule struct {
	every time.Duration
	cron  cron.Schedule
}

// newSchedule resolves the account's scan interval against the
// provider default.
func newSchedule(s config.ScanInterval, providerDefault time.Duration) (schedule, error) {
	if s.Cron != "" {
		sched, err := cron.ParseStandard(s.Cron)
		if err != nil {
			return schedule{}, fmt.Errorf("parse cron %q: %w", s.Cron, err)
		}
		return schedule{cron: sched}, nil
	}
	if providerDefault == 0 {
		providerDefault = defaultScanInterval
	}
	return schedule{every: s.Duration(providerDefault)}, nil
}

func (s schedule) next(from time.Time) time.Time {
	if s.cron != nil {
		return s.cron.Next(from)
	}
	return from.Add(s.every)
}
