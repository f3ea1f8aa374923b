package dispatch

import "sync"

// Update is published after every command the link accepts, and once more
// when the run ends.
type Update struct {
	RunID     string `json:"runID"`
	Completed int    `json:"completed"`
	Total     int    `json:"total"`
	Elapsed   string `json:"elapsed"`
	Response  string `json:"response,omitempty"`

	// Outcome is only set on the final update of a run.
	Outcome *Outcome `json:"outcome,omitempty"`
}

// subscriber buffers updates without bound so that push never blocks;
// pump hands them to out in order.
type subscriber struct {
	mx     sync.Mutex
	queue  []Update
	notify chan struct{}

	out  chan Update
	done chan struct{}
	once sync.Once
}

func newSubscriber() *subscriber {
	s := &subscriber{
		notify: make(chan struct{}, 1),
		out:    make(chan Update),
		done:   make(chan struct{}),
	}
	go s.pump()
	return s
}

func (s *subscriber) push(u Update) {
	s.mx.Lock()
	s.queue = append(s.queue, u)
	s.mx.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *subscriber) pop() (Update, bool) {
	s.mx.Lock()
	defer s.mx.Unlock()
	if len(s.queue) == 0 {
		return Update{}, false
	}
	u := s.queue[0]
	s.queue[0] = Update{}
	s.queue = s.queue[1:]
	return u, true
}

func (s *subscriber) pump() {
	defer close(s.out)
	for {
		select {
		case <-s.done:
			return
		case <-s.notify:
		}

		for {
			u, ok := s.pop()
			if !ok {
				break
			}
			select {
			case s.out <- u:
			case <-s.done:
				return
			}
		}
	}
}

func (s *subscriber) close() {
	s.once.Do(func() { close(s.done) })
}
