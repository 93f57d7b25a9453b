package summary

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"dca-autopilot/internal/events"
	"dca-autopilot/internal/logging"
)

// Scheduler computes daily summaries on a cron schedule, shortly after
// each UTC midnight
type Scheduler struct {
	cron   *cron.Cron
	source TransactionSource
	store  Store
	bus    *events.EventBus
	logger *logging.Logger
}

// NewScheduler creates a summary scheduler. The cron entry is registered
// by Register; nothing runs until Start.
func NewScheduler(source TransactionSource, store Store, bus *events.EventBus) *Scheduler {
	return &Scheduler{
		cron:   cron.New(),
		source: source,
		store:  store,
		bus:    bus,
		logger: logging.WithComponent("summary"),
	}
}

// Register wires the rollup job to a cron expression
func (s *Scheduler) Register(schedule string) error {
	if _, err := s.cron.AddFunc(schedule, s.runDaily); err != nil {
		return fmt.Errorf("register summary task: %w", err)
	}
	return nil
}

// Start starts the cron scheduler
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("Summary scheduler started")
}

// Stop stops the cron scheduler. Running jobs finish.
func (s *Scheduler) Stop() {
	s.cron.Stop()
	s.logger.Info("Summary scheduler stopped")
}

// runDaily summarizes the previous UTC day
func (s *Scheduler) runDaily() {
	day := time.Now().UTC().Truncate(24 * time.Hour).Add(-24 * time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.ComputeDay(ctx, day); err != nil {
		s.logger.Error("Daily summary failed", "day", day.Format("2006-01-02"), "error", err)
		if s.bus != nil {
			s.bus.PublishError("summary", "daily summary failed", err)
		}
	}
}

// ComputeDay aggregates and persists summaries for one UTC day. Exposed
// for the API's recompute endpoint.
func (s *Scheduler) ComputeDay(ctx context.Context, day time.Time) error {
	day = day.UTC().Truncate(24 * time.Hour)

	txs, err := s.source.TransactionsBetween(ctx, day, day.Add(24*time.Hour))
	if err != nil {
		return fmt.Errorf("loading transactions: %w", err)
	}

	summaries := Aggregate(txs, day)
	for i := range summaries {
		summaries[i].ID = uuid.New().String()
		summaries[i].CreatedAt = time.Now()
		if err := s.store.UpsertDailySummary(ctx, summaries[i]); err != nil {
			return fmt.Errorf("persisting summary for strategy %s: %w", summaries[i].StrategyID, err)
		}
	}

	s.logger.Info("Daily summaries computed",
		"day", day.Format("2006-01-02"),
		"strategies", len(summaries),
		"transactions", len(txs))

	if s.bus != nil {
		s.bus.Publish(events.Event{
			Type: events.EventSummaryComputed,
			Data: map[string]interface{}{
				"day":        day.Format("2006-01-02"),
				"strategies": len(summaries),
			},
		})
	}

	return nil
}
