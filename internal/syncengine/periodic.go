package syncengine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Periodic drives the engine on a fixed schedule while the device is
// online, and immediately when connectivity returns.
type Periodic struct {
	engine *Engine
	cron   *cron.Cron
	logger *slog.Logger
}

// NewPeriodic schedules a full sync cycle according to the cron expression,
// e.g. "@every 1m".
func NewPeriodic(engine *Engine, schedule string, logger *slog.Logger) (*Periodic, error) {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Periodic{engine: engine, cron: cron.New(), logger: logger}
	if _, err := p.cron.AddFunc(schedule, p.run); err != nil {
		return nil, fmt.Errorf("schedule periodic sync %q: %w", schedule, err)
	}
	return p, nil
}

// Start begins the periodic schedule.
func (p *Periodic) Start() {
	p.cron.Start()
}

// Stop halts the schedule and waits for a running cycle to finish.
func (p *Periodic) Stop() {
	<-p.cron.Stop().Done()
}

// ConnectivityChanged is the hook for the connectivity collaborator; a
// transition to online triggers an immediate cycle.
func (p *Periodic) ConnectivityChanged(online bool) {
	if online {
		go p.run()
	}
}

func (p *Periodic) run() {
	if err := p.engine.Sync(context.Background()); err != nil {
		if errors.Is(err, ErrAuthRequired) {
			p.logger.Warn("sync requires re-authentication")
			return
		}
		p.logger.Error("sync cycle failed", "error", err)
	}
}
