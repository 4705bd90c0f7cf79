package utils

import (
	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"
)

const taskBacklog = 100

type WorkerFunc = func(t *tomb.Tomb, task any) error

// WorkerPool runs a fixed number of workers on the given tomb. Workers wait
// on queued tasks and action them; a worker returning an error kills the
// tomb.
type WorkerPool struct {
	n     int
	tasks chan any
}

func NewWorkerPool(size int) WorkerPool {
	return WorkerPool{
		n:     size,
		tasks: make(chan any, taskBacklog),
	}
}

func (pool *WorkerPool) Start(t *tomb.Tomb, work WorkerFunc) {
	for i := 0; i < pool.n; i++ {
		id := i
		t.Go(func() error {
			return pool.worker(t, id, work)
		})
	}
}

// AddTask queues a task for the next free worker. Blocks once the backlog
// is full.
func (pool *WorkerPool) AddTask(task any) {
	pool.tasks <- task
}

func (pool *WorkerPool) worker(t *tomb.Tomb, id int, work WorkerFunc) error {
	for {
		select {
		case <-t.Dying():
			return nil
		case task := <-pool.tasks:
			if err := work(t, task); err != nil {
				log.Error().Err(err).Int("id", id).Msg("worker exiting")
				return err
			}
		}
	}
}
