package dispatch

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/danmuck/tilepad-sdk/internal/protocol/envelope"
	"github.com/rs/zerolog"
)

// AllTopics subscribes to every topic. Wildcard subscribers see frames in wire
// order across topics.
const AllTopics = "*"

// Handler receives one event frame.
type Handler func(topic string, data envelope.Payload)

// Subscription identifies one registration; the zero value matches nothing.
type Subscription struct {
	id    uint64
	topic string
}

func (s Subscription) Topic() string { return s.topic }

func (s Subscription) Valid() bool { return s.id != 0 }

// Dispatcher routes event frames to subscribers by topic.
type Dispatcher struct {
	mu     sync.RWMutex
	topics map[string][]*subscriber
	closed bool
	nextID atomic.Uint64
	log    zerolog.Logger
}

func NewDispatcher(log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		topics: make(map[string][]*subscriber),
		log:    log,
	}
}

// Subscribe registers h for topic. Registration is additive.
func (d *Dispatcher) Subscribe(topic string, h Handler) Subscription {
	topic = strings.TrimSpace(topic)
	if topic == "" || h == nil {
		return Subscription{}
	}
	sub := newSubscriber(d.nextID.Add(1), topic, h, d.log)

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return Subscription{}
	}
	d.topics[topic] = append(d.topics[topic], sub)
	go sub.run()
	return Subscription{id: sub.id, topic: topic}
}

// Unsubscribe removes the registration. Frames dispatched before it returns are
// still delivered; later ones are not.
func (d *Dispatcher) Unsubscribe(s Subscription) bool {
	if !s.Valid() {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	subs := d.topics[s.topic]
	for i, sub := range subs {
		if sub.id != s.id {
			continue
		}
		next := make([]*subscriber, 0, len(subs)-1)
		next = append(next, subs[:i]...)
		next = append(next, subs[i+1:]...)
		if len(next) == 0 {
			delete(d.topics, s.topic)
		} else {
			d.topics[s.topic] = next
		}
		sub.stop()
		return true
	}
	return false
}

// Dispatch enqueues data for every current subscriber of topic and returns the
// count. Each subscriber gets its own deep copy of data.
func (d *Dispatcher) Dispatch(topic string, data envelope.Payload) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	n := 0
	for _, sub := range d.topics[topic] {
		sub.enqueue(delivery{topic: topic, data: data.Clone()})
		n++
	}
	if topic != AllTopics {
		for _, sub := range d.topics[AllTopics] {
			sub.enqueue(delivery{topic: topic, data: data.Clone()})
			n++
		}
	}
	if n == 0 {
		d.log.Debug().Str("topic", topic).Msg("dispatch.Dispatcher.Dispatch no subscribers")
	}
	return n
}

func (d *Dispatcher) Count(topic string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.topics[topic])
}

// Close stops every subscriber once its queued frames are handled; later
// Subscribe calls return an invalid handle.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	for topic, subs := range d.topics {
		for _, sub := range subs {
			sub.stop()
		}
		delete(d.topics, topic)
	}
}

type delivery struct {
	topic string
	data  envelope.Payload
}

// subscriber drains its own FIFO mailbox so a slow handler only delays itself.
// closed only stops new frames; the run loop exits once the mailbox is empty.
type subscriber struct {
	id      uint64
	topic   string
	handler Handler
	log     zerolog.Logger

	mu     sync.Mutex
	queue  []delivery
	wake   chan struct{}
	closed bool
}

func newSubscriber(id uint64, topic string, h Handler, log zerolog.Logger) *subscriber {
	return &subscriber{
		id:      id,
		topic:   topic,
		handler: h,
		log:     log,
		wake:    make(chan struct{}, 1),
	}
}

func (s *subscriber) enqueue(d delivery) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, d)
	s.mu.Unlock()
	s.signal()
}

func (s *subscriber) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscriber) stop() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	s.signal()
}

func (s *subscriber) run() {
	for {
		d, ok, stopped := s.next()
		switch {
		case ok:
			s.invoke(d)
		case stopped:
			return
		default:
			<-s.wake
		}
	}
}

// next pops the oldest delivery. stopped reports an empty mailbox after stop.
func (s *subscriber) next() (d delivery, ok bool, stopped bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return delivery{}, false, s.closed
	}
	d = s.queue[0]
	s.queue[0] = delivery{}
	s.queue = s.queue[1:]
	return d, true, false
}

func (s *subscriber) invoke(d delivery) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().
				Str("topic", d.topic).
				Uint64("subscription", s.id).
				Str("panic", fmt.Sprint(r)).
				Msg("dispatch.subscriber.invoke handler panic recovered")
		}
	}()
	s.handler(d.topic, d.data)
}
