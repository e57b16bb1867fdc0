// Package keepalive implements the per-session keep-alive source
// (spec.md §4.C): a lazy producer of "ka" envelopes, started at most once
// per session and cancelled when its consumer goes away. Modeled on the
// teacher's writePump ticker (internal/graphql/subscription/websocket.go),
// but produces protocol-level "ka" envelopes into a channel instead of
// driving transport-level pings directly.
package keepalive

import (
	"context"
	"time"

	"graphqlws/internal/protocol"
)

// Source produces periodic keep-alive envelopes on a channel, starting one
// interval after Start is called. It emits nothing if interval is zero or
// negative (spec.md §3 invariant #3).
type Source struct {
	interval time.Duration
}

// New creates a keep-alive source for the given interval. A non-positive
// interval disables the source entirely; Start then returns a channel that
// is immediately closed without ever emitting.
func New(interval time.Duration) *Source {
	return &Source{interval: interval}
}

// Enabled reports whether this source would ever emit.
func (s *Source) Enabled() bool {
	return s.interval > 0
}

// Start begins producing "ka" envelopes on the returned channel, one every
// interval, until ctx is cancelled. The channel is closed when production
// stops. Each call starts an independent producer, so one Source can be
// shared across sessions; the handler is responsible for calling it at
// most once per session (spec.md §4.C:
// "only the first connection_init on a given session subscribes to it").
func (s *Source) Start(ctx context.Context) <-chan protocol.Message {
	out := make(chan protocol.Message)

	if !s.Enabled() {
		close(out)
		return out
	}

	go func() {
		defer close(out)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				select {
				case out <- protocol.KeepAlive():
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out
}
