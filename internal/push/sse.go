package push

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"equiscore/internal/logging"

	sse "github.com/tmaxmax/go-sse"
)

// reconnectDelay is sent to every new stream as the SSE retry field.
const reconnectDelay = 3 * time.Second

// SSEServer streams hub notifications to EventSource clients. It relays
// the hub into a go-sse server, so a slow stream can delay other streams
// but never the hub's Broadcast.
type SSEServer struct {
	hub       *Hub
	server    *sse.Server
	keepalive time.Duration

	sessions atomic.Int64
	relay    *Subscription
	done     chan struct{}
	stopOnce sync.Once
}

// greeter is the provider's replayer. Replay runs once the provider has
// registered a new session, so the retry greeting it sends doubles as the
// signal that the stream is live.
type greeter struct{}

func (greeter) Put(m *sse.Message, _ []string) (*sse.Message, error) { return m, nil }

func (greeter) Replay(sub sse.Subscription) error {
	if err := sub.Client.Send(&sse.Message{Retry: reconnectDelay}); err != nil {
		return err
	}
	return sub.Client.Flush()
}

// NewSSEServer subscribes to hub and starts relaying. The relay stops when
// the hub closes or Shutdown is called. A keepalive of zero disables the
// ping comments.
func NewSSEServer(hub *Hub, keepalive time.Duration) (*SSEServer, error) {
	relay, err := hub.subscribeRelay()
	if err != nil {
		return nil, err
	}

	s := &SSEServer{
		hub:       hub,
		keepalive: keepalive,
		relay:     relay,
		done:      make(chan struct{}),
	}
	s.server = &sse.Server{
		Provider:  &sse.Joe{Replayer: greeter{}},
		OnSession: s.onSession,
	}

	go s.run()
	return s, nil
}

func (s *SSEServer) onSession(w http.ResponseWriter, r *http.Request) ([]string, bool) {
	if s.hub.Closed() {
		http.Error(w, ErrHubClosed.Error(), http.StatusServiceUnavailable)
		return nil, false
	}
	h := w.Header()
	h.Set("Cache-Control", "no-cache")
	h.Set("X-Accel-Buffering", "no")
	return []string{sse.DefaultTopic}, true
}

// ServeHTTP serves one event stream until the client leaves or the server
// shuts down.
func (s *SSEServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	n := s.sessions.Add(1)
	logging.PushDebug("sse stream opened from %s (%d open)", r.RemoteAddr, n)
	defer func() {
		n := s.sessions.Add(-1)
		logging.PushDebug("sse stream from %s closed (%d open)", r.RemoteAddr, n)
	}()

	s.server.ServeHTTP(w, r)
}

// Sessions returns the number of open event streams.
func (s *SSEServer) Sessions() int {
	return int(s.sessions.Load())
}

// Shutdown ends every open stream and stops the relay.
func (s *SSEServer) Shutdown(ctx context.Context) error {
	s.stop()
	err := s.server.Shutdown(ctx)
	if errors.Is(err, sse.ErrProviderClosed) {
		return nil
	}
	return err
}

// Done is closed once the relay has stopped.
func (s *SSEServer) Done() <-chan struct{} {
	return s.done
}

func (s *SSEServer) stop() {
	s.stopOnce.Do(func() {
		s.hub.Unsubscribe(s.relay)
	})
}

func (s *SSEServer) run() {
	defer close(s.done)

	var tick <-chan time.Time
	if s.keepalive > 0 {
		ticker := time.NewTicker(s.keepalive)
		defer ticker.Stop()
		tick = ticker.C
	}

	log := logging.Get(logging.CategoryPush).With("transport", "sse")
	for {
		select {
		case <-s.relay.Done():
			// Hub closed or Shutdown called: end the open streams.
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := s.server.Shutdown(ctx); err != nil && !errors.Is(err, sse.ErrProviderClosed) {
				log.Warn("shutdown: %v", err)
			}
			cancel()
			return

		case n := <-s.relay.C:
			if err := s.server.Publish(notificationMessage(n)); err != nil {
				log.Debug("publish #%d: %v", n.Seq, err)
			}

		case <-tick:
			ping := &sse.Message{}
			ping.AppendComment("ping")
			if err := s.server.Publish(ping); err != nil {
				log.Debug("keepalive: %v", err)
			}
		}
	}
}

// notificationMessage frames a notification. EventSource drops events with
// an empty data buffer, so the event name is repeated as the data.
func notificationMessage(n Notification) *sse.Message {
	m := &sse.Message{
		ID:   sse.ID(strconv.FormatUint(n.Seq, 10)),
		Type: sse.Type(n.Event),
	}
	m.AppendData(n.Event)
	return m
}
