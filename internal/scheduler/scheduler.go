package scheduler

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/trogers1052/paper-trading-service/internal/database"
	"github.com/trogers1052/paper-trading-service/internal/engine"
	"github.com/trogers1052/paper-trading-service/internal/models"
	"github.com/trogers1052/paper-trading-service/internal/strategy"
)

// Intervals configures how often each background pass runs.
type Intervals struct {
	Execution time.Duration
	AlgoSlice time.Duration
	Strategy  time.Duration
	Snapshot  time.Duration
}

// Scheduler drives the periodic background work: the order execution pass,
// algo slice execution, strategy evaluation, and performance snapshots.
type Scheduler struct {
	db        *database.DB
	engine    *engine.Engine
	runner    *strategy.Runner
	intervals Intervals
	wg        sync.WaitGroup
}

// NewScheduler creates a new Scheduler
func NewScheduler(db *database.DB, eng *engine.Engine, runner *strategy.Runner, intervals Intervals) *Scheduler {
	return &Scheduler{
		db:        db,
		engine:    eng,
		runner:    runner,
		intervals: intervals,
	}
}

// Start launches the background loops. They stop when ctx is cancelled;
// Wait blocks until they are all done.
func (s *Scheduler) Start(ctx context.Context) {
	s.loop(ctx, "execution", s.intervals.Execution, s.engine.Run)
	s.loop(ctx, "algo slices", s.intervals.AlgoSlice, s.engine.RunAlgoSlices)
	s.loop(ctx, "strategies", s.intervals.Strategy, s.runner.Run)
	s.loop(ctx, "snapshots", s.intervals.Snapshot, s.snapshotPortfolios)
}

// Wait blocks until all loops have exited.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, name string, interval time.Duration, fn func(context.Context) error) {
	if interval <= 0 {
		log.Printf("Scheduler: %s loop disabled", name)
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		log.Printf("Scheduler: %s loop started (every %s)", name, interval)
		for {
			select {
			case <-ctx.Done():
				log.Printf("Scheduler: %s loop stopped", name)
				return
			case <-ticker.C:
				if err := fn(ctx); err != nil {
					log.Printf("Scheduler: %s pass failed: %v", name, err)
				}
			}
		}
	}()
}

// snapshotPortfolios records one performance snapshot per active portfolio.
func (s *Scheduler) snapshotPortfolios(ctx context.Context) error {
	portfolios, err := s.db.ListActivePortfolios(ctx)
	if err != nil {
		return err
	}

	now := time.Now().UTC().Truncate(time.Second)
	for _, p := range portfolios {
		snapshot := &models.PerformanceSnapshot{
			PortfolioID:   p.ID,
			Timestamp:     now,
			Equity:        p.Equity,
			Cash:          p.CashBalance,
			RealizedPnl:   p.RealizedPnl,
			UnrealizedPnl: p.UnrealizedPnl,
			Leverage:      leverage(p),
		}
		if err := s.db.CreateSnapshot(ctx, snapshot); err != nil {
			log.Printf("Failed to snapshot portfolio %d: %v", p.ID, err)
		}
	}
	return nil
}

func leverage(p *models.Portfolio) decimal.Decimal {
	if p.Equity.IsZero() {
		return decimal.Zero
	}
	return p.Equity.Sub(p.CashBalance).Div(p.Equity)
}
