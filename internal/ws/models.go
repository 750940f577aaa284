package ws

import (
	"sync/atomic"
)

var nextSubscriberID atomic.Int64

// Envelope wraps every message sent on a feed.
type Envelope[T any] struct {
	Type  string `json:"type"`
	Seq   int64  `json:"seq"`
	State T      `json:"state"`
}

const snapshotType = "SNAPSHOT"

// Subscriber is one connected client. Each subscriber gets a unique id, a
// message channel and a closeSlow callback.
type Subscriber struct {
	id        int64
	messc     chan []byte
	closeSlow func()
}

func NewSubscriber(messc chan []byte, closeSlow func()) *Subscriber {
	return &Subscriber{
		id:        nextSubscriberID.Add(1),
		messc:     messc,
		closeSlow: closeSlow,
	}
}

func (s *Subscriber) ID() int64 { return s.id }
