package backup

import (
	"sync"

	"github.com/google/uuid"

	"github.com/agncf/netfortress/internal/models"
)

// Event is one progress update for a running job. The terminal event carries
// the job's final status.
type Event struct {
	JobID     int64  `json:"job_id"`
	Completed int    `json:"completed"`
	Total     int    `json:"total"`
	Failed    int    `json:"failed"`
	Status    string `json:"status"`
}

// Terminal reports whether this event closes the job's stream.
func (e Event) Terminal() bool {
	return models.JobStatus(e.Status).Terminal()
}

// Bus fans job progress events out to any number of SSE subscribers.
// Publish never blocks on a slow consumer: each subscriber has its own
// queue drained by a pump goroutine. The last event of a job is retained
// so a subscriber that connects mid-run sees the current counters at once.
type Bus struct {
	mu      sync.Mutex
	streams map[int64]*stream
}

type stream struct {
	subscribers map[uuid.UUID]*subscriber
	last        *Event
	closed      bool
}

type subscriber struct {
	mu     sync.Mutex
	queue  []Event
	notify chan struct{}
	out    chan Event
	done   chan struct{}
}

// NewBus creates an empty progress bus.
func NewBus() *Bus {
	return &Bus{streams: make(map[int64]*stream)}
}

func newSubscriber() *subscriber {
	return &subscriber{
		notify: make(chan struct{}, 1),
		out:    make(chan Event),
		done:   make(chan struct{}),
	}
}

func (s *subscriber) push(e Event) {
	s.mu.Lock()
	s.queue = append(s.queue, e)
	s.mu.Unlock()
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// pump delivers queued events in order until the subscriber cancels.
func (s *subscriber) pump() {
	defer close(s.out)
	for {
		s.mu.Lock()
		var next *Event
		if len(s.queue) > 0 {
			next = &s.queue[0]
			s.queue = s.queue[1:]
		}
		s.mu.Unlock()

		if next == nil {
			select {
			case <-s.notify:
				continue
			case <-s.done:
				return
			}
		}

		select {
		case s.out <- *next:
			if next.Terminal() {
				return
			}
		case <-s.done:
			return
		}
	}
}

// Subscribe returns a channel of progress events for the job and a cancel
// function. The channel closes after the terminal event or on cancel. A late
// subscriber immediately receives the job's last published event.
func (b *Bus) Subscribe(jobID int64) (<-chan Event, func()) {
	b.mu.Lock()

	st, ok := b.streams[jobID]
	if !ok {
		st = &stream{subscribers: make(map[uuid.UUID]*subscriber)}
		b.streams[jobID] = st
	}

	sub := newSubscriber()
	id := uuid.New()
	st.subscribers[id] = sub
	if st.last != nil {
		sub.push(*st.last)
	}
	b.mu.Unlock()

	go sub.pump()

	cancel := func() {
		b.mu.Lock()
		if cur, ok := b.streams[jobID]; ok {
			delete(cur.subscribers, id)
			if cur.closed && len(cur.subscribers) == 0 {
				delete(b.streams, jobID)
			}
		}
		b.mu.Unlock()
		close(sub.done)
	}
	return sub.out, cancel
}

// Publish broadcasts an event to the job's subscribers without blocking.
// The terminal event marks the stream closed; its state is dropped once the
// last subscriber detaches.
func (b *Bus) Publish(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	st, ok := b.streams[e.JobID]
	if !ok {
		st = &stream{subscribers: make(map[uuid.UUID]*subscriber)}
		b.streams[e.JobID] = st
	}

	st.last = &e
	for _, sub := range st.subscribers {
		sub.push(e)
	}

	if e.Terminal() {
		st.closed = true
		if len(st.subscribers) == 0 {
			delete(b.streams, e.JobID)
		}
	}
}

// Last returns the most recent event published for a job, if any.
func (b *Bus) Last(jobID int64) (Event, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if st, ok := b.streams[jobID]; ok && st.last != nil {
		return *st.last, true
	}
	return Event{}, false
}
