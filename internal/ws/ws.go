// Package ws streams store snapshots to browsers over WebSocket.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

type Feed struct {
	// Messages beyond the buffer get the subscriber closed as too slow.
	subscriberMessageBuffer int

	// Per connection send pacing. Default: 1 every 100ms, burst capacity of 8.
	sendLimit rate.Limit
	sendBurst int

	writeTimeout   time.Duration
	originPatterns []string
	logger         zerolog.Logger

	mu          sync.Mutex
	subscribers map[int64]*Subscriber
}

// NewFeed accepts connections from the page origin and from allowedOrigin.
func NewFeed(allowedOrigin string, logger zerolog.Logger) *Feed {
	var patterns []string
	if u, err := url.Parse(allowedOrigin); err == nil && u.Host != "" {
		patterns = append(patterns, u.Host)
	}

	return &Feed{
		subscriberMessageBuffer: 16,
		sendLimit:               rate.Every(100 * time.Millisecond),
		sendBurst:               8,
		writeTimeout:            5 * time.Second,
		originPatterns:          patterns,
		logger:                  logger.With().Str("component", "ws").Logger(),
		subscribers:             make(map[int64]*Subscriber),
	}
}

// SubscriberCount returns the number of open connections.
func (f *Feed) SubscriberCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subscribers)
}

func (f *Feed) addSubscriber(s *Subscriber) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribers[s.ID()] = s
}

func (f *Feed) removeSubscriber(s *Subscriber) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.subscribers, s.ID())
}

// Versioned states carry a number that grows with every change.
type Versioned interface {
	StateVersion() uint64
}

// Serve upgrades the request and streams every state published through
// subscribe until either side goes away. Closing errors are logged, not
// returned.
func Serve[T any](f *Feed, w http.ResponseWriter, r *http.Request, subscribe func(func(T)) func()) {
	err := stream(f, w, r, subscribe)
	if errors.Is(err, context.Canceled) {
		f.logger.Debug().Err(err).Msg("subscription canceled")
		return
	}

	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		f.logger.Debug().Err(err).Msg("websocket closed")
		return
	}

	if err != nil {
		f.logger.Warn().Err(err).Msg("websocket feed ended")
	}
}

func stream[T any](f *Feed, w http.ResponseWriter, r *http.Request, subscribe func(func(T)) func()) error {
	var mu sync.Mutex
	var conn *websocket.Conn
	var closed bool

	s := NewSubscriber(make(chan []byte, f.subscriberMessageBuffer), func() {
		mu.Lock()
		defer mu.Unlock()

		closed = true
		if conn != nil {
			conn.Close(websocket.StatusPolicyViolation, "connection too slow to keep up with messages")
		}
	})

	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: f.originPatterns,
	})
	if err != nil {
		return err
	}

	// closeSlow may already have run from a publish.
	mu.Lock()
	if closed {
		mu.Unlock()
		return net.ErrClosed
	}
	conn = c
	mu.Unlock()
	defer conn.CloseNow()

	f.addSubscriber(s)
	defer f.removeSubscriber(s)

	var (
		sendMu  sync.Mutex
		seq     int64
		sent    bool
		lastVer uint64
	)
	unsubscribe := subscribe(func(state T) {
		sendMu.Lock()
		defer sendMu.Unlock()

		// Publishers notify outside their lock, so snapshots can arrive out
		// of order. Never send one older than what the client already has.
		if v, ok := any(state).(Versioned); ok {
			if sent && v.StateVersion() <= lastVer {
				f.logger.Debug().Uint64("version", v.StateVersion()).Msg("dropping stale snapshot")
				return
			}
			sent, lastVer = true, v.StateVersion()
		}

		seq++
		msg, err := json.Marshal(Envelope[T]{Type: snapshotType, Seq: seq, State: state})
		if err != nil {
			f.logger.Error().Err(err).Msg("failed to encode snapshot")
			return
		}

		select {
		case s.messc <- msg:
		default:
			f.logger.Warn().Int64("subscriber", s.ID()).Msg("subscriber too slow, closing")
			go s.closeSlow()
		}
	})
	defer unsubscribe()

	// The feed is write only. CloseRead handles control frames and cancels
	// ctx once the client goes away.
	ctx := conn.CloseRead(r.Context())
	limiter := rate.NewLimiter(f.sendLimit, f.sendBurst)

	for {
		select {
		case msg := <-s.messc:
			if err := limiter.Wait(ctx); err != nil {
				return err
			}
			if err := writeTimeout(ctx, f.writeTimeout, conn, msg); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func writeTimeout(ctx context.Context, timeout time.Duration, conn *websocket.Conn, msg []byte) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return conn.Write(ctx, websocket.MessageText, msg)
}
