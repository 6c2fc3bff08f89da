package job

import (
	"context"
	"time"

	"m3u8conv/logger"
)

// RetentionPolicy controls how long finished jobs stay visible
type RetentionPolicy struct {
	CompletedTTL  time.Duration
	ErrorTTL      time.Duration
	SweepInterval time.Duration
}

// DefaultRetention keeps completed jobs for 30 minutes and failed ones for 5
var DefaultRetention = RetentionPolicy{
	CompletedTTL:  30 * time.Minute,
	ErrorTTL:      5 * time.Minute,
	SweepInterval: time.Minute,
}

// Sweeper evicts terminal records once their retention window has elapsed.
// It only removes registry entries; files on disk are left alone.
type Sweeper struct {
	registry Registry
	policy   RetentionPolicy

	// OnEvict is called for every evicted record, if set
	OnEvict func(rec Record)
}

func NewSweeper(registry Registry, policy RetentionPolicy) *Sweeper {
	if policy.SweepInterval <= 0 {
		policy.SweepInterval = DefaultRetention.SweepInterval
	}
	return &Sweeper{registry: registry, policy: policy}
}

// Run sweeps on every interval until ctx is cancelled
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.policy.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := s.Sweep(now); n > 0 {
				logger.Debugf("Retention sweep evicted %d jobs", n)
			}
		}
	}
}

// Sweep evicts every expired record as of now and returns how many were removed
func (s *Sweeper) Sweep(now time.Time) int {
	evicted := 0
	for _, rec := range s.registry.List() {
		if !s.expired(rec, now) {
			continue
		}
		if err := s.registry.Delete(rec.ID); err != nil {
			continue
		}
		evicted++
		if s.OnEvict != nil {
			s.OnEvict(rec)
		}
	}
	return evicted
}

func (s *Sweeper) expired(rec Record, now time.Time) bool {
	if rec.CompletedAt == nil {
		return false
	}
	var ttl time.Duration
	switch rec.Status {
	case StatusCompleted:
		ttl = s.policy.CompletedTTL
	case StatusError:
		ttl = s.policy.ErrorTTL
	default:
		return false
	}
	return now.Sub(*rec.CompletedAt) >= ttl
}
