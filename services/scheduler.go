package services

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

// Sweeper periodically archives transfer ratios whose credit card has been
// archived outside the card archive command.
type Sweeper struct {
	cards    *CreditCardService
	interval time.Duration
	log      *zap.Logger
	sched    gocron.Scheduler
}

func NewSweeper(cards *CreditCardService, interval time.Duration, log *zap.Logger) *Sweeper {
	return &Sweeper{cards: cards, interval: interval, log: log.Named("sweeper")}
}

func (s *Sweeper) Start() error {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}
	_, err = sched.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(s.runOnce),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = sched.Shutdown()
		return fmt.Errorf("schedule sweep: %w", err)
	}
	sched.Start()
	s.sched = sched
	s.log.Info("sweep scheduled", zap.Duration("interval", s.interval))
	return nil
}

func (s *Sweeper) Stop() error {
	if s.sched == nil {
		return nil
	}
	return s.sched.Shutdown()
}

func (s *Sweeper) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if _, err := s.cards.SweepArchivedCards(ctx); err != nil {
		s.log.Error("sweep failed", zap.Error(err))
	}
}
