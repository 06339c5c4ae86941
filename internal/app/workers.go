package app

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
)

// backgroundWorker — фоновый цикл процесса с управляемой остановкой.
type backgroundWorker struct {
	name   string
	cancel context.CancelFunc
	done   chan struct{}
}

func startWorker(ctx context.Context, name string, run func(ctx context.Context)) *backgroundWorker {
	ctx, cancel := context.WithCancel(ctx)
	w := &backgroundWorker{name: name, cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(w.done)
		run(ctx)
	}()
	return w
}

// stop отменяет цикл и ждёт его завершения не дольше timeout.
func (w *backgroundWorker) stop(timeout time.Duration, logger *log.Entry) {
	if w == nil {
		return
	}
	w.cancel()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-w.done:
		logger.WithField("worker", w.name).Info("worker stopped")
	case <-timer.C:
		logger.WithField("worker", w.name).Warn("worker did not stop in time")
	}
}
