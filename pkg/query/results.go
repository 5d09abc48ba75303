package query

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/onyx-dev/onyx-database-go/internal/debug"
)

// DefaultParallelism bounds the workers used by ForEachPageParallel.
var DefaultParallelism = 16

// QueryPage is one page of records and the cursor of the next page. An
// empty NextPage means there are no more pages.
type QueryPage[T any] struct {
	Records  []T    `json:"records"`
	NextPage string `json:"nextPage,omitempty"`
}

// PageFetcher loads the page identified by a continuation cursor.
type PageFetcher[T any] func(ctx context.Context, nextPage string) (*QueryPage[T], error)

// Results holds the records of the current page and walks the following
// pages on demand. Traversal is forward only.
type Results[T any] struct {
	Records  []T
	NextPage string
	fetch    PageFetcher[T]
}

// NewResults wraps page with a fetcher for the pages after it. A nil
// fetcher limits traversal to page.
func NewResults[T any](page *QueryPage[T], fetch PageFetcher[T]) *Results[T] {
	r := &Results[T]{fetch: fetch}
	if page != nil {
		r.Records = page.Records
		r.NextPage = page.NextPage
	}
	return r
}

// Len returns the number of records on the current page.
func (r *Results[T]) Len() int { return len(r.Records) }

// Size is Len.
func (r *Results[T]) Size() int { return len(r.Records) }

// IsEmpty reports whether the current page has no records.
func (r *Results[T]) IsEmpty() bool { return len(r.Records) == 0 }

// At returns the i-th record of the current page.
func (r *Results[T]) At(i int) T { return r.Records[i] }

// HasNextPage reports whether a continuation cursor is present.
func (r *Results[T]) HasNextPage() bool { return r.NextPage != "" }

// First returns the first record of the current page, or ErrNoRecords.
func (r *Results[T]) First() (T, error) {
	if len(r.Records) == 0 {
		var zero T
		return zero, ErrNoRecords
	}
	return r.Records[0], nil
}

// FirstOrNull returns the first record of the current page or nil.
func (r *Results[T]) FirstOrNull() *T {
	if len(r.Records) == 0 {
		return nil
	}
	rec := r.Records[0]
	return &rec
}

// ForEachOnPage calls fn for each record of the current page only.
func (r *Results[T]) ForEachOnPage(fn func(T)) {
	for _, rec := range r.Records {
		fn(rec)
	}
}

// ForEachPage calls fn with the records of each page, starting with the
// current one, until the pages run out or fn returns false. No page past
// the one on which fn returned false is fetched.
func (r *Results[T]) ForEachPage(ctx context.Context, fn func([]T) bool) error {
	records, next := r.Records, r.NextPage
	for {
		if !fn(records) {
			return nil
		}
		if next == "" || r.fetch == nil {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		page, err := r.fetch(ctx, next)
		if err != nil {
			return err
		}
		if page.NextPage == next {
			debug.Warn("backend returned the same cursor twice; stopping", "nextPage", next)
			page.NextPage = ""
		}
		records, next = page.Records, page.NextPage
	}
}

// ForEachAll calls fn for every record on every page. Returning false
// stops the traversal.
func (r *Results[T]) ForEachAll(ctx context.Context, fn func(T) bool) error {
	return r.ForEachPage(ctx, func(records []T) bool {
		for _, rec := range records {
			if !fn(rec) {
				return false
			}
		}
		return true
	})
}

// GetAllRecords loads every page and returns all records.
func (r *Results[T]) GetAllRecords(ctx context.Context) ([]T, error) {
	var all []T
	err := r.ForEachPage(ctx, func(records []T) bool {
		all = append(all, records...)
		return true
	})
	return all, err
}

// FilterAll returns every record across all pages for which keep is true.
func (r *Results[T]) FilterAll(ctx context.Context, keep func(T) bool) ([]T, error) {
	var out []T
	err := r.ForEachAll(ctx, func(rec T) bool {
		if keep(rec) {
			out = append(out, rec)
		}
		return true
	})
	return out, err
}

// MapAll applies fn to every record across all pages.
func MapAll[T, R any](ctx context.Context, r *Results[T], fn func(T) R) ([]R, error) {
	var out []R
	err := r.ForEachAll(ctx, func(rec T) bool {
		out = append(out, fn(rec))
		return true
	})
	return out, err
}

// SumOfFloats adds fn(record) over all pages.
func (r *Results[T]) SumOfFloats(ctx context.Context, fn func(T) float64) (float64, error) {
	var sum float64
	err := r.ForEachAll(ctx, func(rec T) bool {
		sum += fn(rec)
		return true
	})
	return sum, err
}

// SumOfInts adds fn(record) over all pages.
func (r *Results[T]) SumOfInts(ctx context.Context, fn func(T) int64) (int64, error) {
	var sum int64
	err := r.ForEachAll(ctx, func(rec T) bool {
		sum += fn(rec)
		return true
	})
	return sum, err
}

// SumOfBigInts adds fn(record) over all pages. Nil values count as zero.
func (r *Results[T]) SumOfBigInts(ctx context.Context, fn func(T) *big.Int) (*big.Int, error) {
	sum := new(big.Int)
	err := r.ForEachAll(ctx, func(rec T) bool {
		if v := fn(rec); v != nil {
			sum.Add(sum, v)
		}
		return true
	})
	return sum, err
}

func (r *Results[T]) MaxOfFloats(ctx context.Context, fn func(T) float64) (float64, error) {
	return extremum(ctx, r, fn, func(a, b float64) bool { return a > b })
}

func (r *Results[T]) MinOfFloats(ctx context.Context, fn func(T) float64) (float64, error) {
	return extremum(ctx, r, fn, func(a, b float64) bool { return a < b })
}

func (r *Results[T]) MaxOfInts(ctx context.Context, fn func(T) int64) (int64, error) {
	return extremum(ctx, r, fn, func(a, b int64) bool { return a > b })
}

func (r *Results[T]) MinOfInts(ctx context.Context, fn func(T) int64) (int64, error) {
	return extremum(ctx, r, fn, func(a, b int64) bool { return a < b })
}

// MaxOfBigInts returns the largest fn(record). Nil values never win.
func (r *Results[T]) MaxOfBigInts(ctx context.Context, fn func(T) *big.Int) (*big.Int, error) {
	return extremum(ctx, r, fn, func(a, b *big.Int) bool { return b == nil || (a != nil && a.Cmp(b) > 0) })
}

// MinOfBigInts returns the smallest fn(record). Nil values never win.
func (r *Results[T]) MinOfBigInts(ctx context.Context, fn func(T) *big.Int) (*big.Int, error) {
	return extremum(ctx, r, fn, func(a, b *big.Int) bool { return b == nil || (a != nil && a.Cmp(b) < 0) })
}

// extremum keeps the value for which better(candidate, current) holds.
// It fails with ErrNoRecords when there are no records at all.
func extremum[T, N any](ctx context.Context, r *Results[T], fn func(T) N, better func(a, b N) bool) (N, error) {
	var best N
	seen := false
	err := r.ForEachAll(ctx, func(rec T) bool {
		v := fn(rec)
		if !seen || better(v, best) {
			best = v
			seen = true
		}
		return true
	})
	if err != nil {
		return best, err
	}
	if !seen {
		return best, ErrNoRecords
	}
	return best, nil
}

// ForEachPageParallel runs fn for every record of a page concurrently on a
// bounded worker pool, waits for the whole page, then moves to the next
// one. Errors of a page are joined and stop the traversal.
func (r *Results[T]) ForEachPageParallel(ctx context.Context, fn func(context.Context, T) error) error {
	pool, err := ants.NewPool(DefaultParallelism, ants.WithPanicHandler(func(v any) {
		debug.Error("record callback panic", "panic", v)
	}))
	if err != nil {
		return err
	}
	defer pool.Release()

	var pageErr error
	walkErr := r.ForEachPage(ctx, func(records []T) bool {
		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			errs []error
		)
		for _, rec := range records {
			rec := rec // per-iteration copy; go.mod targets go 1.21
			wg.Add(1)
			submitErr := pool.Submit(func() {
				defer wg.Done()
				if err := fn(ctx, rec); err != nil {
					mu.Lock()
					errs = append(errs, err)
					mu.Unlock()
				}
			})
			if submitErr != nil {
				wg.Done()
				mu.Lock()
				errs = append(errs, submitErr)
				mu.Unlock()
			}
		}
		wg.Wait()
		pageErr = errors.Join(errs...)
		return pageErr == nil
	})
	if pageErr != nil {
		return pageErr
	}
	return walkErr
}
