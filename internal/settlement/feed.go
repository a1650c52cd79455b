package settlement

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"

	redisclient "github.com/zoosats/devicetimer/internal/redis"
)

// Feed subscribes to the wallet core's settled-payment channel and forwards
// events in arrival order.
type Feed struct {
	redis   *redisclient.Client
	channel string
}

func NewFeed(redis *redisclient.Client, channel string) *Feed {
	return &Feed{redis: redis, channel: channel}
}

// Events returns an ordered stream of settlement events. The channel closes
// when ctx is cancelled. Malformed payloads are logged and skipped.
func (f *Feed) Events(ctx context.Context) <-chan Event {
	out := make(chan Event)
	pubsub := f.redis.Subscribe(ctx, f.channel)

	go func() {
		defer close(out)
		defer pubsub.Close()

		log.Info().Str("channel", f.channel).Msg("settlement feed subscribed")
		ch := pubsub.Channel()

		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}

				var event Event
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					log.Error().Err(err).Str("channel", f.channel).Msg("failed to unmarshal settlement event")
					continue
				}

				select {
				case out <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out
}
