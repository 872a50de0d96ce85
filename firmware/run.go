package firmware

import (
	"context"
	"time"
)

// LoopInterval is the period of the foreground loop.
const LoopInterval = 5 * time.Millisecond

// Run is the foreground loop. It updates ind from ctrl's LED mode and stall
// state every LoopInterval until ctx is cancelled.
func Run(ctx context.Context, ctrl *Controller, ind *Indicator) error {
	start := time.Now()
	tick := time.NewTicker(LoopInterval)
	defer tick.Stop()

	for {
		ind.Update(uint32(time.Since(start).Milliseconds()), ctrl.LEDMode(), ctrl.Stalled())
		select {
		case <-ctx.Done():
			return nil
		case <-tick.C:
		}
	}
}
