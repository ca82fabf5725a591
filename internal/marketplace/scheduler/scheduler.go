// Package scheduler runs the periodic maintenance jobs of the marketplace.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

type ExpiryRepository interface {
	CloseExpired(ctx context.Context, now time.Time) (int64, error)
}

type ExpiryRecorder interface {
	ExpiredPostings(n int64)
}

// PostingExpirer closes active postings once their application deadline has
// passed.
type PostingExpirer struct {
	repo     ExpiryRepository
	recorder ExpiryRecorder
	cron     *cron.Cron
	now      func() time.Time
	timeout  time.Duration
	logger   *zap.Logger
}

func NewPostingExpirer(repo ExpiryRepository, recorder ExpiryRecorder, logger *zap.Logger) *PostingExpirer {
	return &PostingExpirer{
		repo:     repo,
		recorder: recorder,
		cron:     cron.New(),
		now:      time.Now,
		timeout:  time.Minute,
		logger:   logger.Named("posting_expirer"),
	}
}

// Start schedules the sweep with a standard five-field cron spec.
func (p *PostingExpirer) Start(spec string) error {
	if _, err := p.cron.AddFunc(spec, p.sweep); err != nil {
		return fmt.Errorf("invalid expiry schedule %q: %w", spec, err)
	}
	p.cron.Start()
	p.logger.Info("posting expirer started", zap.String("schedule", spec))
	return nil
}

// Stop waits for a running sweep to finish.
func (p *PostingExpirer) Stop() {
	<-p.cron.Stop().Done()
}

func (p *PostingExpirer) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	now := p.now().UTC()
	closed, err := p.repo.CloseExpired(ctx, now)
	if err != nil {
		p.logger.Error("Failed to close expired postings", zap.Error(err))
		return
	}
	if p.recorder != nil {
		p.recorder.ExpiredPostings(closed)
	}
	p.logger.Info("Expired postings closed", zap.Time("at", now), zap.Int64("affected", closed))
}
