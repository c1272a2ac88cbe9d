package mqtt

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/sweeney/ble-button/internal/bus"
)

// Forward publishes every event received on sub until ctx is done or the
// bus closes. Publish errors are logged and never stop forwarding.
func Forward[T any](ctx context.Context, sub *bus.Subscriber[T], publish func(T) error, log logrus.FieldLogger) error {
	if log == nil {
		log = logrus.StandardLogger()
	}
	log = log.WithField("task", "mqtt-forward")
	defer sub.Unsubscribe()

	for {
		ev, err := sub.Next(ctx)
		if errors.Is(err, bus.ErrClosed) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := publish(ev); err != nil {
			log.Warnf("mqtt publish error: %v", err)
		}
	}
}
