// workers/settlement.go
package workers

import (
	"context"
	"time"

	"loyalty-draw-system/services"

	"github.com/go-co-op/gocron/v2"
)

// StartSettlementScheduler settles pending prize draw results every interval.
// The caller shuts the returned scheduler down.
func StartSettlementScheduler(ctx context.Context, engine *services.PrizeDrawEngine, interval time.Duration) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	entry := log.WithField("worker", "settlement")
	_, err = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			settled, err := engine.SettlePending(ctx)
			if err != nil {
				entry.WithError(err).Error("[Scheduler] settlement failed")
				return
			}
			if settled > 0 {
				entry.WithField("settled", settled).Info("✅ pending results settled")
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = sched.Shutdown()
		return nil, err
	}

	sched.Start()
	return sched, nil
}
