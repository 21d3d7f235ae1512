package brewing

import (
	"context"
	"fmt"
	"time"

	"github.com/FastCoffeePoint/CoffeeMachineBackend/internal/platform/observability"

	"go.uber.org/zap"
)

// PickupTimeoutPolicy decides what happens when nobody collects the
// beverage in time. Completed is published in every case.
type PickupTimeoutPolicy string

const (
	// PickupPolicyComplete completes the order silently.
	PickupPolicyComplete PickupTimeoutPolicy = "complete"
	// PickupPolicyAlert logs an error record with a fresh error code.
	PickupPolicyAlert PickupTimeoutPolicy = "alert"
	// PickupPolicyRewait waits up to MaxRewaits further windows.
	PickupPolicyRewait PickupTimeoutPolicy = "rewait"
)

func ParsePickupTimeoutPolicy(s string) (PickupTimeoutPolicy, error) {
	switch p := PickupTimeoutPolicy(s); p {
	case "":
		return PickupPolicyComplete, nil
	case PickupPolicyComplete, PickupPolicyAlert, PickupPolicyRewait:
		return p, nil
	default:
		return "", fmt.Errorf("unknown pickup timeout policy %q", s)
	}
}

type pickupResult int

const (
	pickupCollected pickupResult = iota
	pickupTimedOut
	pickupCancelled
)

func (r pickupResult) String() string {
	switch r {
	case pickupCollected:
		return "collected"
	case pickupTimedOut:
		return "timed_out"
	default:
		return "cancelled"
	}
}

// waitForPickup polls the presence sensor until the beverage is gone, the
// timeout windows run out, or ctx is cancelled.
func (o *Orchestrator) waitForPickup(ctx context.Context, logger observability.Logger) pickupResult {
	windows := 1
	if o.opts.TimeoutPolicy == PickupPolicyRewait {
		windows += o.opts.MaxRewaits
	}

	for w := 1; w <= windows; w++ {
		switch o.pollPresence(ctx, logger) {
		case pickupCollected:
			return pickupCollected
		case pickupCancelled:
			logger.Info("Pickup wait cancelled, treating the beverage as not taken")
			return pickupCancelled
		}
		if w < windows {
			logger.Warn("Beverage wasn't collected yet, waiting again",
				zap.Int("window", w), zap.Duration("timeout", o.opts.PickupTimeout))
		}
	}

	if o.opts.TimeoutPolicy == PickupPolicyAlert {
		logger.Error("❌ Beverage wasn't collected before the pickup timeout",
			zap.Stringer("error_code", o.newErrorCode()),
			zap.Duration("timeout", o.opts.PickupTimeout))
	} else {
		logger.Warn("Beverage wasn't collected before the pickup timeout",
			zap.Duration("timeout", o.opts.PickupTimeout))
	}
	return pickupTimedOut
}

func (o *Orchestrator) pollPresence(ctx context.Context, logger observability.Logger) pickupResult {
	deadline := time.NewTimer(o.opts.PickupTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(o.opts.PickupPollInterval)
	defer ticker.Stop()

	for {
		present, err := o.presence.IsPresent(ctx)
		switch {
		case err != nil && ctx.Err() == nil:
			logger.Warn("Presence sensor read failed", zap.Error(err))
		case err == nil && !present:
			return pickupCollected
		}

		select {
		case <-ctx.Done():
			return pickupCancelled
		case <-deadline.C:
			return pickupTimedOut
		case <-ticker.C:
		}
	}
}
