// Package queue tracks client-side upload and maintenance tasks.
//
// A Queue is an actor: one goroutine owns the task list and every call is a
// command sent over a channel, so callers never share task state. Tasks move
// pending → processing → completed|failed and never go back.
package queue

import (
	crand "crypto/rand"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	"github.com/agjmills/gallery/internal/logger"
	"github.com/oklog/ulid"
)

type Type string

const (
	TypeUpload       Type = "upload"
	TypeDelete       Type = "delete"
	TypeTogglePublic Type = "toggle-public"
	TypeMoveFolder   Type = "move-folder"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

var (
	ErrInvalidTransition = errors.New("invalid task transition")
	ErrNotFound          = errors.New("task not found")
	ErrClosed            = errors.New("queue closed")
)

// subscriberBuffer bounds each change feed. Slow subscribers miss updates.
const subscriberBuffer = 64

type Task struct {
	ID                     string        `json:"id"`
	Type                   Type          `json:"type"`
	Title                  string        `json:"title"`
	Status                 Status        `json:"status"`
	Progress               int           `json:"progress"`
	CurrentChunk           int           `json:"current_chunk,omitempty"`
	TotalChunks            int           `json:"total_chunks,omitempty"`
	EstimatedTimeRemaining time.Duration `json:"estimated_time_remaining,omitempty"`
	Error                  string        `json:"error,omitempty"`
	CreatedAt              time.Time     `json:"created_at"`
	StartedAt              *time.Time    `json:"started_at,omitempty"`
	CompletedAt            *time.Time    `json:"completed_at,omitempty"`
}

// Terminal reports whether the task reached completed or failed.
func (t Task) Terminal() bool {
	return t.Status == StatusCompleted || t.Status == StatusFailed
}

// Progress is one tick from a running task. Percent is clamped to 0..100.
type Progress struct {
	Percent      float64
	CurrentChunk int
	TotalChunks  int
	ETA          time.Duration
}

type Stats struct {
	Total      int `json:"total"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Processing int `json:"processing"`
}

type state struct {
	tasks   []*Task
	byID    map[string]*Task
	subs    map[int]chan Task
	nextSub int
	entropy io.Reader
}

type Queue struct {
	cmds      chan func(*state)
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// New starts the queue goroutine. Call Close to stop it.
func New() *Queue {
	q := &Queue{
		cmds: make(chan func(*state)),
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
	go q.run(&state{
		byID:    make(map[string]*Task),
		subs:    make(map[int]chan Task),
		entropy: ulid.Monotonic(crand.Reader, 0),
	})
	return q
}

func (q *Queue) run(s *state) {
	defer close(q.done)
	for {
		select {
		case cmd := <-q.cmds:
			cmd(s)
		case <-q.quit:
			for id, ch := range s.subs {
				close(ch)
				delete(s.subs, id)
			}
			s.tasks = nil
			s.byID = nil
			return
		}
	}
}

// Close stops the queue and drops every task. Subscriber channels are closed.
func (q *Queue) Close() {
	q.closeOnce.Do(func() { close(q.quit) })
	<-q.done
}

// do runs fn on the queue goroutine and waits for it to finish.
func (q *Queue) do(fn func(*state)) error {
	finished := make(chan struct{})
	cmd := func(s *state) {
		defer close(finished)
		fn(s)
	}
	select {
	case q.cmds <- cmd:
	case <-q.done:
		return ErrClosed
	}
	<-finished
	return nil
}

// Add creates a pending task and returns its id, or "" once the queue is closed.
func (q *Queue) Add(typ Type, title string) string {
	var id string
	q.do(func(s *state) {
		now := time.Now()
		t := &Task{
			ID:        "task_" + ulid.MustNew(ulid.Timestamp(now), s.entropy).String(),
			Type:      typ,
			Title:     title,
			Status:    StatusPending,
			CreatedAt: now,
		}
		s.tasks = append(s.tasks, t)
		s.byID[t.ID] = t
		s.notify(t)
		id = t.ID
	})
	return id
}

// Start moves a pending task to processing.
func (q *Queue) Start(id string) error {
	return q.update(id, func(t *Task) error {
		if t.Status != StatusPending {
			return transitionError(t, StatusProcessing)
		}
		now := time.Now()
		t.Status = StatusProcessing
		t.StartedAt = &now
		return nil
	})
}

// Progress records a tick for a processing task.
func (q *Queue) Progress(id string, p Progress) error {
	return q.update(id, func(t *Task) error {
		if t.Status != StatusProcessing {
			return fmt.Errorf("%w: progress on %s task %s", ErrInvalidTransition, t.Status, t.ID)
		}
		t.Progress = clampPercent(p.Percent)
		t.CurrentChunk = p.CurrentChunk
		t.TotalChunks = p.TotalChunks
		t.EstimatedTimeRemaining = max(p.ETA, 0)
		return nil
	})
}

// Retitle changes the display title of a task that has not finished.
func (q *Queue) Retitle(id, title string) error {
	return q.update(id, func(t *Task) error {
		if t.Terminal() {
			return fmt.Errorf("%w: retitle of %s task %s", ErrInvalidTransition, t.Status, t.ID)
		}
		t.Title = title
		return nil
	})
}

func (q *Queue) Complete(id string) error {
	return q.update(id, func(t *Task) error {
		if t.Status != StatusProcessing {
			return transitionError(t, StatusCompleted)
		}
		finish(t, StatusCompleted)
		t.Progress = 100
		return nil
	})
}

// Fail marks a processing task failed with cause's message attached.
func (q *Queue) Fail(id string, cause error) error {
	return q.update(id, func(t *Task) error {
		if t.Status != StatusProcessing {
			return transitionError(t, StatusFailed)
		}
		finish(t, StatusFailed)
		if cause != nil {
			t.Error = cause.Error()
		}
		return nil
	})
}

// Remove deletes a terminal task from the list.
func (q *Queue) Remove(id string) error {
	var err error
	if cerr := q.do(func(s *state) {
		t, ok := s.byID[id]
		if !ok {
			err = ErrNotFound
			return
		}
		if !t.Terminal() {
			err = fmt.Errorf("%w: cannot remove %s task %s", ErrInvalidTransition, t.Status, id)
			return
		}
		s.remove(id)
	}); cerr != nil {
		return cerr
	}
	return err
}

// ClearCompleted drops every terminal task and returns how many went.
func (q *Queue) ClearCompleted() int {
	var n int
	q.do(func(s *state) {
		kept := s.tasks[:0]
		for _, t := range s.tasks {
			if t.Terminal() {
				delete(s.byID, t.ID)
				n++
				continue
			}
			kept = append(kept, t)
		}
		s.tasks = kept
	})
	return n
}

func (q *Queue) Get(id string) (Task, bool) {
	var (
		task  Task
		found bool
	)
	q.do(func(s *state) {
		if t, ok := s.byID[id]; ok {
			task, found = *t, true
		}
	})
	return task, found
}

// Snapshot returns copies of all tasks in creation order.
func (q *Queue) Snapshot() []Task {
	var out []Task
	q.do(func(s *state) {
		out = make([]Task, len(s.tasks))
		for i, t := range s.tasks {
			out[i] = *t
		}
	})
	return out
}

func (q *Queue) Stats() Stats {
	var st Stats
	q.do(func(s *state) {
		st.Total = len(s.tasks)
		for _, t := range s.tasks {
			switch t.Status {
			case StatusCompleted:
				st.Completed++
			case StatusFailed:
				st.Failed++
			case StatusProcessing:
				st.Processing++
			}
		}
	})
	return st
}

// Subscribe returns a feed of task changes and a function that ends the
// subscription. Updates are dropped for a subscriber whose buffer is full.
func (q *Queue) Subscribe() (<-chan Task, func()) {
	ch := make(chan Task, subscriberBuffer)
	var id int
	if err := q.do(func(s *state) {
		id = s.nextSub
		s.nextSub++
		s.subs[id] = ch
	}); err != nil {
		close(ch)
		return ch, func() {}
	}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			q.do(func(s *state) {
				if sub, ok := s.subs[id]; ok {
					close(sub)
					delete(s.subs, id)
				}
			})
		})
	}
	return ch, cancel
}

func (q *Queue) update(id string, fn func(*Task) error) error {
	var err error
	if cerr := q.do(func(s *state) {
		t, ok := s.byID[id]
		if !ok {
			err = ErrNotFound
			return
		}
		if err = fn(t); err != nil {
			logger.Debug("task update rejected", "task_id", id, "error", err)
			return
		}
		s.notify(t)
	}); cerr != nil {
		return cerr
	}
	return err
}

func (s *state) notify(t *Task) {
	for _, ch := range s.subs {
		select {
		case ch <- *t:
		default:
		}
	}
}

func (s *state) remove(id string) {
	delete(s.byID, id)
	for i, t := range s.tasks {
		if t.ID == id {
			s.tasks = append(s.tasks[:i], s.tasks[i+1:]...)
			return
		}
	}
}

func finish(t *Task, status Status) {
	now := time.Now()
	t.Status = status
	t.CompletedAt = &now
	t.EstimatedTimeRemaining = 0
}

func transitionError(t *Task, to Status) error {
	return fmt.Errorf("%w: %s -> %s for task %s", ErrInvalidTransition, t.Status, to, t.ID)
}

func clampPercent(p float64) int {
	switch {
	case math.IsNaN(p) || p < 0:
		return 0
	case p > 100:
		return 100
	}
	return int(math.Round(p))
}

// EstimateRemaining extrapolates linearly from the time spent so far. It
// returns 0 when nothing is known yet or the work is done.
func EstimateRemaining(elapsed time.Duration, fraction float64) time.Duration {
	if fraction <= 0 || fraction >= 1 || elapsed <= 0 {
		return 0
	}
	total := time.Duration(float64(elapsed) / fraction)
	return max(total-elapsed, 0)
}
