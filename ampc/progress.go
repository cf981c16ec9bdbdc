package ampc

import (
	"context"
	"sync"
	"time"

	"github.com/BaSui01/wayfarer/internal/channel"
)

// RoundEvent reports one round protocol step to anything watching a
// running Coordinator (§4.7 round protocol, §6 debug/watch stream).
type RoundEvent struct {
	Round    int
	Mapper   string
	Finished bool
}

func subscriberConfig() channel.TunableConfig {
	return channel.TunableConfig{
		InitialSize:  16,
		MinSize:      4,
		MaxSize:      256,
		GrowFactor:   2.0,
		ShrinkFactor: 0.5,
		SampleWindow: 5 * time.Second,
	}
}

// ProgressHub fans RoundEvent out to every current subscriber. Publish
// never blocks the caller: each subscriber is a self-tuning
// channel.TunableChannel that grows when a watching client falls behind
// under sustained load and shrinks back once it catches up, instead of
// a single fixed buffer size picked once at construction.
type ProgressHub struct {
	mu   sync.Mutex
	subs map[*channel.TunableChannel[RoundEvent]]struct{}
}

// NewProgressHub returns an empty hub ready to Publish/Subscribe.
func NewProgressHub() *ProgressHub {
	return &ProgressHub{subs: make(map[*channel.TunableChannel[RoundEvent]]struct{})}
}

// Subscription is a live registration on a ProgressHub.
type Subscription struct {
	tc *channel.TunableChannel[RoundEvent]
}

// Receive blocks for the next RoundEvent published after subscribing,
// or returns ctx.Err() if ctx is done first.
func (s *Subscription) Receive(ctx context.Context) (RoundEvent, error) {
	return s.tc.Receive(ctx)
}

// Subscribe registers a new listener and returns it plus a cancel func
// that must be called to unregister it once the watcher disconnects.
func (h *ProgressHub) Subscribe() (*Subscription, func()) {
	tc := channel.NewTunableChannel[RoundEvent](subscriberConfig())

	h.mu.Lock()
	h.subs[tc] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		delete(h.subs, tc)
		h.mu.Unlock()
	}
	return &Subscription{tc: tc}, cancel
}

// Publish fans ev out to every current subscriber, dropping it for any
// subscriber whose buffer is currently full, and lets each subscriber's
// channel re-tune its own size from the resulting send/block counters.
func (h *ProgressHub) Publish(ev RoundEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for tc := range h.subs {
		tc.TrySend(ev)
		tc.Tune()
	}
}
