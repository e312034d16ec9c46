package configurator

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// runPool runs fn for every item in items with at most concurrency
// goroutines in flight at once, grounded on the semaphore-channel +
// sync.WaitGroup + buffered-error-channel idiom. failFast cancels the
// shared context after the first error so in-flight work can bail out
// early; the run always waits for every goroutine to return before
// reporting, since an object's gencode may have already begun side
// effects that must not be left unaccounted for.
func runPool[T any](ctx context.Context, items []T, concurrency int, failFast bool, fn func(context.Context, T) error) error {
	if len(items) == 0 {
		return nil
	}
	if concurrency <= 0 || concurrency > len(items) {
		concurrency = len(items)
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if failFast {
		runCtx, cancel = context.WithCancel(ctx)
		defer cancel()
	}

	semaphore := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	errChan := make(chan error, len(items))

	for _, item := range items {
		item := item
		wg.Add(1)
		go func() {
			defer wg.Done()

			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			select {
			case <-runCtx.Done():
				errChan <- runCtx.Err()
				return
			default:
			}

			if err := fn(runCtx, item); err != nil {
				errChan <- err
				if failFast {
					cancel()
				}
				return
			}
			errChan <- nil
		}()
	}

	go func() {
		wg.Wait()
		close(errChan)
	}()

	var errs []string
	for err := range errChan {
		if err != nil {
			errs = append(errs, err.Error())
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("parallel run failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// chunkByNonparallel partitions objects into scheduling chunks so that
// no two objects of the same nonparallel type ever run concurrently
// within the same chunk (spec.md §4.7, §3 "nonparallel" type flag):
// each nonparallel type gets at most one representative per chunk,
// with the rest spilling into later chunks; parallel-safe types are
// packed greedily into the first chunk since they carry no exclusion
// constraint.
func chunkByNonparallel[T any](items []T, nameOf func(T) string, isNonparallel func(T) bool) [][]T {
	var chunks [][]T
	seenInChunk := make(map[int]map[string]bool)

	for _, item := range items {
		if !isNonparallel(item) {
			if len(chunks) == 0 {
				chunks = append(chunks, nil)
				seenInChunk[0] = make(map[string]bool)
			}
			chunks[0] = append(chunks[0], item)
			continue
		}

		typeName := nameOf(item)
		placed := false
		for i := range chunks {
			if !seenInChunk[i][typeName] {
				chunks[i] = append(chunks[i], item)
				seenInChunk[i][typeName] = true
				placed = true
				break
			}
		}
		if !placed {
			chunks = append(chunks, []T{item})
			seenInChunk[len(chunks)-1] = map[string]bool{typeName: true}
		}
	}
	return chunks
}
