package stream

import (
	"context"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"bist-sentinel/internal/models"
)

// Property: with buffers larger than the burst, every subscriber
// receives every published event, in publish order.
func TestProperty_AllSubscribersReceiveAllEvents(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 20
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("Every subscriber drains the full burst in order", prop.ForAll(
		func(subscriberCount int, eventCount int) bool {
			hub := NewHubWithConfig(HubConfig{
				BufferSize:           64,
				SubscriberBufferSize: 64,
			})

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			hub.Start(ctx)
			defer hub.Stop()

			subs := make([]*Subscription, subscriberCount)
			for i := range subs {
				subs[i] = hub.Subscribe()
			}

			for i := 0; i < eventCount; i++ {
				hub.Publish(Event{Kind: KindPosition, Symbol: "PROP", Price: float64(i)})
			}

			for s, sub := range subs {
				for i := 0; i < eventCount; i++ {
					select {
					case ev := <-sub.C:
						if ev.Price != float64(i) {
							t.Logf("FAILED: subscriber %d event %d expected price %.0f, got %.0f", s, i, float64(i), ev.Price)
							return false
						}
					case <-time.After(2 * time.Second):
						t.Logf("FAILED: subscriber %d timed out after %d of %d events", s, i, eventCount)
						return false
					}
				}
				if sub.Dropped() != 0 {
					t.Logf("FAILED: subscriber %d dropped %d events with oversized buffer", s, sub.Dropped())
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 5),
		gen.IntRange(1, 32),
	))

	properties.TestingRun(t)
}

// Property: a subscription buffer behaves as a sliding window. After a
// burst of K events into a buffer of size B, the subscriber drains
// exactly min(B, K) events and they are the last min(B, K) published,
// still in order.
func TestProperty_DropOldestKeepsNewestEvents(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("Full buffers evict the oldest event first", prop.ForAll(
		func(bufferSize int, eventCount int) bool {
			hub := NewHubWithConfig(HubConfig{
				BufferSize:           4,
				SubscriberBufferSize: bufferSize,
			})
			sub := hub.Subscribe(KindPosition)

			for i := 0; i < eventCount; i++ {
				hub.Broadcast(Event{Kind: KindPosition, Symbol: "PROP", Price: float64(i)})
			}

			want := eventCount
			if bufferSize < want {
				want = bufferSize
			}

			for i := 0; i < want; i++ {
				select {
				case ev := <-sub.C:
					expected := float64(eventCount - want + i)
					if ev.Price != expected {
						t.Logf("FAILED: slot %d expected price %.0f, got %.0f", i, expected, ev.Price)
						return false
					}
				default:
					t.Logf("FAILED: expected %d buffered events, channel empty at %d", want, i)
					return false
				}
			}

			select {
			case ev := <-sub.C:
				t.Logf("FAILED: unexpected extra event with price %.0f", ev.Price)
				return false
			default:
			}

			if int(sub.Dropped()) != eventCount-want {
				t.Logf("FAILED: expected %d dropped, got %d", eventCount-want, sub.Dropped())
				return false
			}
			return true
		},
		gen.IntRange(1, 8),
		gen.IntRange(1, 24),
	))

	properties.TestingRun(t)
}

// Property: an alarm never fires twice without an observation strictly
// inside the band between the firings.
func TestProperty_AlarmRefireRequiresRearm(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("Consecutive firings are separated by a re-arm", prop.ForAll(
		func(level float64, path []float64) bool {
			book := NewAlarmBook(map[string]models.AlarmBand{"PROP": {Below: level}})
			now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

			armed := true
			for i, price := range path {
				fired := book.Evaluate("PROP", price, now.Add(time.Duration(i)*time.Minute))
				if len(fired) > 1 {
					t.Logf("FAILED: single alarm fired %d times in one evaluation", len(fired))
					return false
				}
				if len(fired) == 1 {
					if !armed {
						t.Logf("FAILED: alarm refired at step %d without re-arming", i)
						return false
					}
					if price > level {
						t.Logf("FAILED: below alarm fired at price %.2f above level %.2f", price, level)
						return false
					}
					armed = false
				}
				if price > level {
					armed = true
				}
			}
			return true
		},
		gen.Float64Range(50, 150),
		gen.SliceOfN(30, gen.Float64Range(40, 160)),
	))

	properties.TestingRun(t)
}
