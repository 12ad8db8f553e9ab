// Package coordinator enforces mutual exclusion between the sentinel and
// institutional trading modes.
package coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"weex-trading-bot/internal/events"
	"weex-trading-bot/internal/logging"
	"weex-trading-bot/internal/orchestrator"
	"weex-trading-bot/internal/sentinel"
)

// Mode labels.
const (
	ModeIdle          = "IDLE"
	ModeSentinel      = "SENTINEL"
	ModeInstitutional = "INSTITUTIONAL"
)

// Coordinator is the trading mode state machine. Exactly one mode may be
// active at a time.
type Coordinator struct {
	mu sync.Mutex

	mode      string
	since     time.Time
	sentinel  *sentinel.Loop
	orch      *orchestrator.Orchestrator
	bus       *events.EventBus
	logger    *logging.Logger
}

// New creates an idle coordinator over the two loops. bus may be nil.
func New(sent *sentinel.Loop, orch *orchestrator.Orchestrator, bus *events.EventBus) *Coordinator {
	return &Coordinator{
		mode:     ModeIdle,
		since:    time.Now(),
		sentinel: sent,
		orch:     orch,
		bus:      bus,
		logger:   logging.WithComponent("coordinator"),
	}
}

// StartSentinel activates sentinel mode. Refused while the institutional
// loop runs.
func (c *Coordinator) StartSentinel(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.mode {
	case ModeSentinel:
		return fmt.Errorf("sentinel mode already active")
	case ModeInstitutional:
		return fmt.Errorf("cannot start sentinel mode while institutional mode is active")
	}

	if err := c.sentinel.Start(ctx); err != nil {
		return err
	}
	c.transitionLocked(ModeSentinel)
	return nil
}

// StartInstitutional activates institutional mode, stopping the sentinel
// loop first when it is running.
func (c *Coordinator) StartInstitutional(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.mode == ModeInstitutional {
		return fmt.Errorf("institutional mode already active")
	}
	if c.mode == ModeSentinel {
		c.sentinel.Stop()
		c.logger.Info("Sentinel loop stopped for institutional handover")
	}

	if err := c.orch.Start(ctx); err != nil {
		return err
	}
	c.transitionLocked(ModeInstitutional)
	return nil
}

// StopSentinel deactivates sentinel mode. Idempotent.
func (c *Coordinator) StopSentinel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mode != ModeSentinel {
		return
	}
	c.sentinel.Stop()
	c.transitionLocked(ModeIdle)
}

// StopInstitutional deactivates institutional mode. Idempotent.
func (c *Coordinator) StopInstitutional() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mode != ModeInstitutional {
		return
	}
	c.orch.Stop()
	c.transitionLocked(ModeIdle)
}

// StopAll deactivates whichever mode is running.
func (c *Coordinator) StopAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.mode {
	case ModeSentinel:
		c.sentinel.Stop()
	case ModeInstitutional:
		c.orch.Stop()
	default:
		return
	}
	c.transitionLocked(ModeIdle)
}

// Mode returns the active mode.
func (c *Coordinator) Mode() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// Status returns the coordinator snapshot including per-loop stats.
func (c *Coordinator) Status() map[string]interface{} {
	c.mu.Lock()
	mode := c.mode
	since := c.since
	c.mu.Unlock()

	return map[string]interface{}{
		"mode":          mode,
		"mode_since":    since,
		"mode_uptime":   time.Since(since).String(),
		"sentinel":      c.sentinel.Status(),
		"institutional": c.orch.Status(),
	}
}

// transitionLocked records the mode change and emits the event. Caller
// holds c.mu.
func (c *Coordinator) transitionLocked(to string) {
	from := c.mode
	c.mode = to
	c.since = time.Now()
	c.logger.Info("Trading mode changed", "from", from, "to", to)
	if c.bus != nil {
		c.bus.PublishModeChanged(from, to)
	}
}
