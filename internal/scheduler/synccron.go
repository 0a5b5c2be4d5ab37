package scheduler

import (
	"context"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// SyncFunc runs one instrument sync pass.
type SyncFunc func(ctx context.Context) error

// SyncCron schedules the instrument reference-data sync on a six-field cron
// expression (seconds included, matching the configured default
// "0 30 21 * * SUN").
type SyncCron struct {
	cron   *cron.Cron
	logger zerolog.Logger
}

// NewSyncCron registers the sync function under the expression. The returned
// cron is not started yet.
func NewSyncCron(expression string, run SyncFunc, logger zerolog.Logger) (*SyncCron, error) {
	l := logger.With().Str("component", "sync_cron").Logger()
	c := cron.New(cron.WithParser(cron.NewParser(
		cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
	)))

	_, err := c.AddFunc(expression, func() {
		l.Info().Msg("scheduled instrument sync started")
		if err := run(context.Background()); err != nil {
			l.Error().Err(err).Msg("scheduled instrument sync failed")
		}
	})
	if err != nil {
		return nil, err
	}
	return &SyncCron{cron: c, logger: l}, nil
}

// Start launches the cron loop.
func (s *SyncCron) Start() {
	s.cron.Start()
	s.logger.Info().Msg("instrument sync cron started")
}

// Stop halts scheduling and waits for a running job to finish.
func (s *SyncCron) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}
