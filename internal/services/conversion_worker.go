package services

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var ErrConversionQueueFull = errors.New("conversion queue is full")

type conversionJob struct {
	PartID    int64
	SourceKey string
}

// ConversionWorker runs queued conversions with bounded concurrency.
type ConversionWorker struct {
	jobs    chan conversionJob
	workers int
	handle  func(ctx context.Context, job conversionJob)
	logger  *zap.Logger
}

func NewConversionWorker(workers, queueSize int, handle func(ctx context.Context, job conversionJob), logger *zap.Logger) *ConversionWorker {
	if workers <= 0 {
		workers = 1
	}
	return &ConversionWorker{
		jobs:    make(chan conversionJob, queueSize),
		workers: workers,
		handle:  handle,
		logger:  logger,
	}
}

// Enqueue never blocks the request path.
func (w *ConversionWorker) Enqueue(job conversionJob) error {
	select {
	case w.jobs <- job:
		return nil
	default:
		return ErrConversionQueueFull
	}
}

// Run consumes jobs until ctx is cancelled and waits for running conversions.
func (w *ConversionWorker) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.workers)
	w.logger.Info("conversion worker started", zap.Int("workers", w.workers))

	for {
		select {
		case <-ctx.Done():
			err := g.Wait()
			w.logger.Info("conversion worker stopped")
			return err
		case job := <-w.jobs:
			g.Go(func() error {
				w.handle(gctx, job)
				return nil
			})
		}
	}
}
