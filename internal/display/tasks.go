package display

import (
	"sync"
	"time"
)

// taskQueue serializes work onto the plugin-UI goroutine. Every touch of
// the hosted UI library — instantiate, idle, port events, cleanup — goes
// through here, so the library only ever sees one thread.
type taskQueue struct {
	mu      sync.Mutex
	tasks   []func()
	stopped bool

	idleMu sync.Mutex
	idle   func()
}

func newTaskQueue() *taskQueue {
	return &taskQueue{}
}

// reset re-arms a stopped queue for a fresh attach, keeping the installed
// idle callback.
func (q *taskQueue) reset() {
	q.mu.Lock()
	q.stopped = false
	q.mu.Unlock()
}

// Post enqueues a task. Tasks posted after shutdown run immediately on the
// caller so waiters can never hang on a dead queue.
func (q *taskQueue) Post(task func()) {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		task()
		return
	}
	q.tasks = append(q.tasks, task)
	q.mu.Unlock()
}

// PostAndWait enqueues a task and blocks until it has run.
func (q *taskQueue) PostAndWait(task func()) {
	done := make(chan struct{})
	q.Post(func() {
		task()
		close(done)
	})
	<-done
}

// SetIdle installs the callback invoked once per loop iteration after the
// queued tasks have drained.
func (q *taskQueue) SetIdle(idle func()) {
	q.idleMu.Lock()
	q.idle = idle
	q.idleMu.Unlock()
}

func (q *taskQueue) drain() {
	for {
		q.mu.Lock()
		tasks := q.tasks
		q.tasks = nil
		q.mu.Unlock()
		if len(tasks) == 0 {
			return
		}
		for _, task := range tasks {
			task()
		}
	}
}

// run is the plugin-UI loop: drain posted tasks, pump the idle callback,
// sleep out the rest of the interval. The final drain after stop makes
// sure no PostAndWait caller is left blocked.
func (q *taskQueue) run(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			q.mu.Lock()
			q.stopped = true
			q.mu.Unlock()
			q.drain()
			return
		case <-ticker.C:
			q.drain()
			q.idleMu.Lock()
			idle := q.idle
			q.idleMu.Unlock()
			if idle != nil {
				idle()
			}
		}
	}
}
