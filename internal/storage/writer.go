package storage

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// HistoryWriter buffers execution rows and writes them asynchronously so a
// slow or unavailable database never touches the hook path.
type HistoryWriter struct {
	db   *DB
	ch   chan *Execution
	wg   sync.WaitGroup
	done chan struct{}
}

func NewHistoryWriter(db *DB, bufferSize int) *HistoryWriter {
	if bufferSize < 1 {
		bufferSize = 4096
	}
	return &HistoryWriter{
		db:   db,
		ch:   make(chan *Execution, bufferSize),
		done: make(chan struct{}),
	}
}

func (w *HistoryWriter) Start() {
	w.wg.Add(1)
	go w.processLoop()
}

// Record enqueues one row. Drops on a full buffer rather than blocking.
func (w *HistoryWriter) Record(exec *Execution) {
	select {
	case w.ch <- exec:
	default:
		log.Warn().Uint64("count", exec.Seq).Msg("history buffer full, dropping row")
	}
}

// Flush drains pending rows, waiting at most timeout.
func (w *HistoryWriter) Flush(timeout time.Duration) {
	close(w.done)

	doneCh := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(doneCh)
	}()

	select {
	case <-doneCh:
		log.Info().Msg("history writer flushed")
	case <-time.After(timeout):
		log.Warn().Msg("history writer flush timed out")
	}
}

func (w *HistoryWriter) processLoop() {
	defer w.wg.Done()

	for {
		select {
		case exec := <-w.ch:
			w.writeWithRetry(exec)
		case <-w.done:
			// Drain remaining rows
			for {
				select {
				case exec := <-w.ch:
					w.writeWithRetry(exec)
				default:
					return
				}
			}
		}
	}
}

func (w *HistoryWriter) writeWithRetry(exec *Execution) {
	const maxRetries = 3

	for attempt := 0; attempt <= maxRetries; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := w.db.InsertExecution(ctx, exec)
		cancel()

		if err == nil {
			return
		}

		if attempt < maxRetries {
			backoff := time.Duration(math.Pow(2, float64(attempt))) * 100 * time.Millisecond
			log.Warn().
				Err(err).
				Uint64("count", exec.Seq).
				Int("attempt", attempt+1).
				Dur("backoff", backoff).
				Msg("history write failed, retrying")
			time.Sleep(backoff)
		} else {
			log.Error().
				Err(err).
				Uint64("count", exec.Seq).
				Msg("history write failed permanently after retries")
		}
	}
}
