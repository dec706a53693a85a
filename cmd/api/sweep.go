package main

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/samber/do"

	"telemint/internal/log"
	"telemint/internal/services"
)

const sweepSchedule = "@every 1m"

type SweepJob struct {
	container *do.Injector
}

func NewSweepJob(container *do.Injector) *SweepJob {
	return &SweepJob{container}
}

func (job *SweepJob) Start(c *cron.Cron) error {
	_, err := c.AddFunc(sweepSchedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := job.Run(ctx); err != nil {
			log.Error().Err(err).Msg("sweep failed")
		}
	})
	return err
}

// Run fails requests still pending after the configured ttl.
func (job *SweepJob) Run(ctx context.Context) error {
	config, err := do.Invoke[*services.ServiceConfig](job.container)
	if err != nil {
		return err
	}
	serviceMint, err := do.Invoke[*services.ServiceMint](job.container)
	if err != nil {
		return err
	}

	n, err := serviceMint.ExpirePending(ctx, config.PendingTTL)
	if err != nil {
		return err
	}
	if n > 0 {
		log.Info().Int("expired", n).Msg("pending requests swept")
	}
	return nil
}
