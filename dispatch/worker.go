package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mastercactapus/gsend/machine"
)

// Status is a snapshot of the worker, safe to read at any time.
type Status struct {
	RunID     string   `json:"runID,omitempty"`
	State     State    `json:"state"`
	Completed int      `json:"completed"`
	Total     int      `json:"total"`
	Elapsed   string   `json:"elapsed"`
	Response  string   `json:"response,omitempty"`
	Outcome   *Outcome `json:"outcome,omitempty"`
}

// run is the per-batch state. A new one is created by every Arm.
type run struct {
	id     string
	batch  machine.Batch
	cancel context.CancelFunc

	cancelRequested bool

	done    chan struct{}
	outcome Outcome
}

// Worker sends a batch of commands to a Link, one at a time and in order.
//
// All Link calls happen on the worker's own goroutine. Every exported method
// is safe to call from any goroutine.
type Worker struct {
	link    machine.Link
	metrics *Metrics
	logger  *log.Logger
	now     func() time.Time

	mx     sync.Mutex
	state  State
	cur    *run
	status Status

	subs      map[int]*subscriber
	nextSubID int
}

// Option configures a Worker.
type Option func(*Worker)

// WithMetrics records activity to m.
func WithMetrics(m *Metrics) Option { return func(w *Worker) { w.metrics = m } }

// WithLogger replaces the default logger.
func WithLogger(l *log.Logger) Option { return func(w *Worker) { w.logger = l } }

// WithClock replaces time.Now for elapsed time.
func WithClock(now func() time.Time) Option { return func(w *Worker) { w.now = now } }

// NewWorker creates an idle Worker with nothing armed.
func NewWorker(link machine.Link, opts ...Option) *Worker {
	w := &Worker{
		link:   link,
		logger: log.Default(),
		now:    time.Now,
		subs:   make(map[int]*subscriber),
		status: Status{State: StateIdle, Elapsed: formatElapsed(0)},
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// Arm assigns the batch for the next run and resets progress. It may be
// called while idle or after any outcome, but not while running.
//
// The batch is copied; later changes by the caller have no effect.
func (w *Worker) Arm(b machine.Batch) error {
	w.mx.Lock()
	defer w.mx.Unlock()
	if w.state == StateRunning {
		return stateError("arm", w.state)
	}

	w.state = StateIdle
	w.cur = &run{
		batch: b.Clone(),
		done:  make(chan struct{}),
	}
	w.status = Status{
		State:   StateIdle,
		Total:   len(b),
		Elapsed: formatElapsed(0),
	}
	return nil
}

// Start begins sending the armed batch on a new goroutine and returns
// immediately.
//
// Cancelling ctx has the same effect as RequestCancel.
func (w *Worker) Start(ctx context.Context) error {
	w.mx.Lock()
	defer w.mx.Unlock()
	if w.cur == nil || w.state != StateIdle {
		if w.state == StateIdle {
			return fmt.Errorf("start without batch: %w", ErrInvalidState)
		}
		return stateError("start", w.state)
	}

	runCtx, cancel := context.WithCancel(ctx)
	r := w.cur
	r.id = uuid.NewString()
	r.cancel = cancel

	w.state = StateRunning
	w.status.State = StateRunning
	w.status.RunID = r.id
	w.metrics.started()

	go w.loop(runCtx, r)
	return nil
}

// RequestCancel asks the running batch to stop before its next command.
// It never blocks, and has no effect unless a run is in progress.
func (w *Worker) RequestCancel() {
	w.mx.Lock()
	defer w.mx.Unlock()
	if w.state != StateRunning || w.cur.cancelRequested {
		return
	}
	w.cur.cancelRequested = true
	w.cur.cancel()
	w.logger.Printf("run %s: cancel requested at %d/%d", w.cur.id, w.status.Completed, w.status.Total)
}

// Status returns the latest published state.
func (w *Worker) Status() Status {
	w.mx.Lock()
	defer w.mx.Unlock()
	return w.status
}

// Done returns a channel closed when the armed run ends. It is nil if no
// batch has been armed.
func (w *Worker) Done() <-chan struct{} {
	w.mx.Lock()
	defer w.mx.Unlock()
	if w.cur == nil {
		return nil
	}
	return w.cur.done
}

// Wait blocks until the armed run ends and returns its outcome.
func (w *Worker) Wait(ctx context.Context) (Outcome, error) {
	w.mx.Lock()
	r := w.cur
	w.mx.Unlock()
	if r == nil {
		return Outcome{}, fmt.Errorf("wait without batch: %w", ErrInvalidState)
	}

	select {
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	case <-r.done:
		return r.outcome, nil
	}
}

// Subscribe returns a channel of updates for every run from now on, and a
// func to stop receiving them. The channel is closed once unsubscribed.
//
// Updates are queued per subscriber, so a slow reader falls behind instead
// of stalling the worker or losing updates.
func (w *Worker) Subscribe() (<-chan Update, func()) {
	s := newSubscriber()

	w.mx.Lock()
	id := w.nextSubID
	w.nextSubID++
	w.subs[id] = s
	w.mx.Unlock()

	return s.out, func() {
		w.mx.Lock()
		delete(w.subs, id)
		w.mx.Unlock()
		s.close()
	}
}

// publishLocked must be called with w.mx held; holding it across every push
// keeps all subscribers in the same order.
func (w *Worker) publishLocked(u Update) {
	for _, s := range w.subs {
		s.push(u)
	}
}

func (w *Worker) loop(ctx context.Context, r *run) {
	start := w.now()
	total := len(r.batch)
	w.logger.Printf("run %s: sending %d commands", r.id, total)

	out := Outcome{State: StateCompleted, Sent: total}
	for i, cmd := range r.batch {
		// the only safe point: between commands
		if ctx.Err() != nil {
			out = w.abort(r, i)
			break
		}

		resp, err := w.link.Send(cmd)
		if err != nil {
			out = Outcome{
				State: StateFailed,
				Sent:  i,
				Err:   &TransportError{Index: i, Command: cmd, Err: err},
			}
			break
		}

		w.progress(r, i+1, formatElapsed(w.now().Sub(start)), resp)
	}

	w.finish(r, out)
}

// abort rolls the link back to the context of the command before i and
// interrupts the controller.
func (w *Worker) abort(r *run, i int) Outcome {
	var errs []error
	if i > 0 {
		err := w.link.SetInterpreterContext(r.batch[i-1].Context)
		if err != nil {
			errs = append(errs, fmt.Errorf("rollback: %w", err))
		}
	}
	err := w.link.InterruptProgram()
	if err != nil {
		errs = append(errs, fmt.Errorf("interrupt: %w", err))
	}

	return Outcome{State: StateCancelled, Sent: i, Err: errors.Join(errs...)}
}

func (w *Worker) progress(r *run, completed int, elapsed, resp string) {
	w.mx.Lock()
	defer w.mx.Unlock()

	w.status.Completed = completed
	w.status.Elapsed = elapsed
	w.status.Response = resp
	w.metrics.sent(completed, w.status.Total)

	w.publishLocked(Update{
		RunID:     r.id,
		Completed: completed,
		Total:     w.status.Total,
		Elapsed:   elapsed,
		Response:  resp,
	})
}

func (w *Worker) finish(r *run, out Outcome) {
	w.mx.Lock()
	defer w.mx.Unlock()

	r.cancel()
	r.outcome = out

	w.state = out.State
	w.status.State = out.State
	w.status.Outcome = &out
	w.metrics.finished(out)

	switch out.State {
	case StateFailed:
		w.logger.Printf("ERROR: run %s: %v", r.id, out.Err)
	case StateCancelled:
		if out.Err != nil {
			w.logger.Printf("ERROR: run %s: cancel recovery: %v", r.id, out.Err)
		}
		w.logger.Printf("run %s: cancelled after %d/%d commands", r.id, out.Sent, w.status.Total)
	default:
		w.logger.Printf("run %s: completed %d commands in %s", r.id, out.Sent, w.status.Elapsed)
	}

	w.publishLocked(Update{
		RunID:     r.id,
		Completed: w.status.Completed,
		Total:     w.status.Total,
		Elapsed:   w.status.Elapsed,
		Response:  w.status.Response,
		Outcome:   &out,
	})

	close(r.done)
}
