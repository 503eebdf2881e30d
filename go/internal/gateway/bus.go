package gateway

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/skjftp/fpl-auction-sub001/go/internal/events"
)

// RunBus forwards an in-process subscription to the connected clients until
// ctx ends or the subscription closes
func (cm *ConnectionManager) RunBus(ctx context.Context, sub *events.Subscription) {
	defer sub.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-sub.C:
			if !ok {
				return
			}
			if err := cm.Publish(ctx, evt); err != nil {
				log.Debug().Err(err).Msg("bus feed stopped")
				return
			}
		}
	}
}
