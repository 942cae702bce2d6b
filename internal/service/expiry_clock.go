package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/immxrtalbeast/meetsync/lib/logger/sl"
)

const DefaultSweepInterval = 60 * time.Second

type Sweeper interface {
	SweepExpired(ctx context.Context) (int, error)
}

// ExpiryClock ends overdue meetings on a fixed interval for as long as its
// context lives.
type ExpiryClock struct {
	sweeper  Sweeper
	interval time.Duration
	log      *slog.Logger
}

func NewExpiryClock(sweeper Sweeper, interval time.Duration, log *slog.Logger) *ExpiryClock {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if log == nil {
		log = slog.Default()
	}
	return &ExpiryClock{sweeper: sweeper, interval: interval, log: log}
}

func (c *ExpiryClock) Run(ctx context.Context) error {
	const op = "service.expiry.run"
	log := c.log.With(slog.String("op", op), slog.Duration("interval", c.interval))

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	log.Info("expiry clock started")
	for {
		select {
		case <-ctx.Done():
			log.Info("expiry clock stopped")
			return nil
		case <-ticker.C:
			c.tick(ctx, log)
		}
	}
}

func (c *ExpiryClock) tick(ctx context.Context, log *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("expiry sweep panicked", sl.Err(fmt.Errorf("%v", r)))
		}
	}()

	n, err := c.sweeper.SweepExpired(ctx)
	if err != nil {
		log.Error("expiry sweep failed", slog.Int("expired", n), sl.Err(err))
		return
	}
	if n > 0 {
		log.Info("meetings expired", slog.Int("count", n))
	}
}
