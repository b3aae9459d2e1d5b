// Package scheduler serializes the synchronization callbacks. Every UI
// message, save notification and file-change event runs as a task on a
// single worker, so no two of them interleave.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("archsync.scheduler")

var ErrStopped = errors.New("scheduler stopped")

type Task struct {
	Name    string
	Execute func(ctx context.Context) error
}

type job struct {
	task Task
	ctx  context.Context
	done chan error
}

type Scheduler struct {
	taskQueue       chan job
	lowPriorityLock sync.Mutex
	stopChan        chan struct{}
	stopOnce        sync.Once
	wg              sync.WaitGroup
}

// NewScheduler creates a new Scheduler with the specified queue size
func NewScheduler(queueSize int) *Scheduler {
	return &Scheduler{
		taskQueue: make(chan job, queueSize),
		stopChan:  make(chan struct{}),
	}
}

// Run starts the worker
func (s *Scheduler) Run() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case j := <-s.taskQueue:
				s.execute(j)
			case <-s.stopChan:
				// drain what was queued before the stop
				for {
					select {
					case j := <-s.taskQueue:
						s.execute(j)
					default:
						return
					}
				}
			}
		}
	}()
}

func (s *Scheduler) execute(j job) {
	log.Debug("executing task", "task", j.task.Name)
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("task %s panicked: %v", j.task.Name, r)
			}
		}()
		return j.task.Execute(j.ctx)
	}()
	if err != nil {
		log.Error("task failed", "task", j.task.Name, "error", err)
	}
	if j.done != nil {
		j.done <- err
	}
}

// Do runs task on the worker and waits for it.
func (s *Scheduler) Do(ctx context.Context, task Task) error {
	done := make(chan error, 1)
	if err := s.enqueue(ctx, job{task: task, ctx: ctx, done: done}); err != nil {
		return err
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Submit queues task without waiting for it.
func (s *Scheduler) Submit(ctx context.Context, task Task) error {
	return s.enqueue(ctx, job{task: task, ctx: context.WithoutCancel(ctx)})
}

func (s *Scheduler) enqueue(ctx context.Context, j job) error {
	select {
	case <-s.stopChan:
		return ErrStopped
	default:
	}
	select {
	case s.taskQueue <- j:
		return nil
	case <-s.stopChan:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SchedulePeriodicTask queues lowTask every interval, skipping a tick when
// the queue is full.
func (s *Scheduler) SchedulePeriodicTask(interval time.Duration, lowTask Task) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.lowPriorityLock.Lock()
				select {
				case s.taskQueue <- job{task: lowTask, ctx: context.Background()}:
					log.Debug("scheduled periodic task", "task", lowTask.Name)
				default:
					log.Debug("skipped periodic task, queue is full", "task", lowTask.Name)
				}
				s.lowPriorityLock.Unlock()
			case <-s.stopChan:
				return
			}
		}
	}()
}

// Stop runs what is already queued, then stops the worker.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		log.Info("stopping scheduler")
		close(s.stopChan)
		s.wg.Wait()
	})
}
