package gateway

import (
	"context"

	"github.com/banshee-data/motion-planner/internal/serialmux"
)

// ConsumeSerial subscribes to mux and applies every line until ctx is done or
// the mux closes the subscription.
func ConsumeSerial(ctx context.Context, mux serialmux.SerialMuxInterface, r *Router) error {
	id, lines := mux.Subscribe()
	defer mux.Unsubscribe(id)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if err := r.HandleMessage([]byte(line)); err != nil {
				logMessageError("serial", err)
			}
		}
	}
}
