package consumer

import (
	"context"
	"errors"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/vanshika/fingraph/internal/transport"
)

// ReceiveError accumulates consecutive receive failures that stopped a Runner.
type ReceiveError struct {
	Errors []error
}

func (e *ReceiveError) Error() string {
	if len(e.Errors) == 0 {
		return "no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	msg := "multiple receive errors:"
	for _, err := range e.Errors {
		msg += " " + err.Error() + ";"
	}
	return msg
}

func (e *ReceiveError) Unwrap() []error {
	return e.Errors
}

func (e *ReceiveError) append(err error) {
	if err == nil {
		return
	}
	e.Errors = append(e.Errors, err)
}

func (e *ReceiveError) reset() {
	e.Errors = e.Errors[:0]
}

const (
	defaultWorkers          = 4
	defaultMaxReceiveErrors = 5
	receiveBackoff          = time.Second
)

// Runner pulls messages from a source and processes them on a fixed worker pool.
// Messages for the same entity always land on the same worker, so they are applied in
// the order the source delivered them.
type Runner struct {
	source           transport.Source
	dispatcher       *Dispatcher
	workers          int
	maxReceiveErrors int
	logger           *slog.Logger
	sleep            func(context.Context, time.Duration) error
}

// NewRunner creates a Runner with the provided concurrency.
func NewRunner(source transport.Source, dispatcher *Dispatcher, workers int, logger *slog.Logger) *Runner {
	if workers <= 0 {
		workers = defaultWorkers
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		source:           source,
		dispatcher:       dispatcher,
		workers:          workers,
		maxReceiveErrors: defaultMaxReceiveErrors,
		logger:           logger.With("component", "runner"),
		sleep:            sleepContext,
	}
}

// Run consumes until ctx is cancelled, returning nil, or until the source fails
// maxReceiveErrors times in a row, returning a *ReceiveError.
func (r *Runner) Run(ctx context.Context) error {
	lanes := make([]chan *transport.Message, r.workers)
	var wg sync.WaitGroup

	worker := func(in <-chan *transport.Message) {
		defer wg.Done()
		for msg := range in {
			r.dispatcher.Dispatch(ctx, msg)
		}
	}

	for i := range lanes {
		lanes[i] = make(chan *transport.Message)
		wg.Add(1)
		go worker(lanes[i])
	}

	var recvErr ReceiveError
	var stopErr error
Loop:
	for {
		msg, err := r.source.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				break Loop
			}
			recvErr.append(err)
			r.logger.Error("receive failed", "consecutive", len(recvErr.Errors), "error", err)
			if len(recvErr.Errors) >= r.maxReceiveErrors {
				stopErr = &ReceiveError{Errors: append([]error(nil), recvErr.Errors...)}
				break Loop
			}
			if r.sleep(ctx, receiveBackoff) != nil {
				break Loop
			}
			continue
		}
		recvErr.reset()
		if msg == nil {
			continue
		}

		lane := lanes[r.laneFor(msg)]
		select {
		case lane <- msg:
		case <-ctx.Done():
			// Already popped from the source; the consumer hands it back instead of applying it.
			r.dispatcher.Dispatch(ctx, msg)
			break Loop
		}
	}

	for _, lane := range lanes {
		close(lane)
	}
	wg.Wait()

	if stopErr != nil {
		return stopErr
	}
	if err := ctx.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (r *Runner) laneFor(msg *transport.Message) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(partitionKey(msg)))
	return int(h.Sum32() % uint32(r.workers))
}
