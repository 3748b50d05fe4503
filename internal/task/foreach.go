package task

import (
	"context"
	"errors"
	"sync"

	"github.com/fyrsmithlabs/plains/internal/entry"
	"go.uber.org/multierr"
	"golang.org/x/sync/semaphore"
)

// ForEachEntry calls fn for every entry with at most Config.Parallel calls
// in flight. Every entry is attempted; per-entry failures are collected into
// one EntryErrors and other failures are combined alongside it.
func (t *Task) ForEachEntry(ctx context.Context, entries []entry.Entry, fn func(ctx context.Context, e entry.Entry) error) error {
	sem := semaphore.NewWeighted(int64(t.config.Parallel))

	var (
		mu        sync.Mutex
		wg        sync.WaitGroup
		entryErrs EntryErrors
		otherErrs error
	)
	record := func(err error) {
		mu.Lock()
		defer mu.Unlock()
		var many EntryErrors
		var one EntryError
		switch {
		case errors.As(err, &many):
			entryErrs = append(entryErrs, many...)
		case errors.As(err, &one):
			entryErrs = append(entryErrs, one)
		default:
			otherErrs = multierr.Append(otherErrs, err)
		}
	}

	for _, e := range entries {
		if err := sem.Acquire(ctx, 1); err != nil {
			record(err)
			break
		}
		wg.Add(1)
		go func(e entry.Entry) {
			defer wg.Done()
			defer sem.Release(1)
			if err := fn(ctx, e); err != nil {
				record(err)
			}
		}(e)
	}
	wg.Wait()

	if len(entryErrs) > 0 {
		return multierr.Append(otherErrs, entryErrs)
	}
	return otherErrs
}
