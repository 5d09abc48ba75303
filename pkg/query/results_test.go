package query_test

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onyx-dev/onyx-database-go/pkg/query"
)

type item struct {
	N int
}

// pagedResults builds Results over pages of ints where page i has cursor
// "p<i>"; it counts fetches.
func pagedResults(pages [][]int, fetches *int) *query.Results[item] {
	toPage := func(i int) *query.QueryPage[item] {
		p := &query.QueryPage[item]{}
		for _, n := range pages[i] {
			p.Records = append(p.Records, item{N: n})
		}
		if i+1 < len(pages) {
			p.NextPage = fmt.Sprintf("p%d", i+1)
		}
		return p
	}
	fetch := func(_ context.Context, token string) (*query.QueryPage[item], error) {
		*fetches++
		var i int
		if _, err := fmt.Sscanf(token, "p%d", &i); err != nil {
			return nil, err
		}
		return toPage(i), nil
	}
	return query.NewResults(toPage(0), fetch)
}

func TestResultsPageAccessors(t *testing.T) {
	var fetches int
	r := pagedResults([][]int{{1, 2}, {3}}, &fetches)

	assert.Equal(t, 2, r.Len())
	assert.Equal(t, 2, r.Size())
	assert.False(t, r.IsEmpty())
	assert.True(t, r.HasNextPage())
	assert.Equal(t, item{N: 2}, r.At(1))

	first, err := r.First()
	require.NoError(t, err)
	assert.Equal(t, 1, first.N)
	assert.Equal(t, 1, r.FirstOrNull().N)

	var seen []int
	r.ForEachOnPage(func(it item) { seen = append(seen, it.N) })
	assert.Equal(t, []int{1, 2}, seen)
	assert.Zero(t, fetches)

	empty := query.NewResults[item](nil, nil)
	_, err = empty.First()
	assert.ErrorIs(t, err, query.ErrNoRecords)
	assert.Nil(t, empty.FirstOrNull())
	assert.True(t, empty.IsEmpty())
}

func TestForEachPageStopsWithoutFetching(t *testing.T) {
	var fetches int
	r := pagedResults([][]int{{1}, {2}, {3}}, &fetches)

	var visited int
	err := r.ForEachPage(context.Background(), func([]item) bool {
		visited++
		return visited < 2
	})
	require.NoError(t, err)
	assert.Equal(t, 2, visited)
	assert.Equal(t, 1, fetches)
}

func TestForEachPageHonorsContext(t *testing.T) {
	var fetches int
	r := pagedResults([][]int{{1}, {2}}, &fetches)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := r.ForEachPage(ctx, func([]item) bool { return true })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, fetches)
}

func TestForEachPageStopsOnRepeatedCursor(t *testing.T) {
	calls := 0
	r := query.NewResults(
		&query.QueryPage[item]{Records: []item{{1}}, NextPage: "same"},
		func(context.Context, string) (*query.QueryPage[item], error) {
			calls++
			return &query.QueryPage[item]{Records: []item{{2}}, NextPage: "same"}, nil
		},
	)
	all, err := r.GetAllRecords(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []item{{1}, {2}}, all)
	assert.Equal(t, 1, calls)
}

func TestResultsAggregatesSpanPages(t *testing.T) {
	ctx := context.Background()
	newResults := func() *query.Results[item] {
		var fetches int
		return pagedResults([][]int{{4, -2}, {9}, {1}}, &fetches)
	}
	n := func(it item) int64 { return int64(it.N) }
	f := func(it item) float64 { return float64(it.N) / 2 }
	b := func(it item) *big.Int { return big.NewInt(int64(it.N)) }

	all, err := newResults().GetAllRecords(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 4)

	sum, err := newResults().SumOfInts(ctx, n)
	require.NoError(t, err)
	assert.Equal(t, int64(12), sum)

	fsum, err := newResults().SumOfFloats(ctx, f)
	require.NoError(t, err)
	assert.InDelta(t, 6.0, fsum, 1e-9)

	bsum, err := newResults().SumOfBigInts(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, "12", bsum.String())

	maxN, err := newResults().MaxOfInts(ctx, n)
	require.NoError(t, err)
	assert.Equal(t, int64(9), maxN)

	minN, err := newResults().MinOfInts(ctx, n)
	require.NoError(t, err)
	assert.Equal(t, int64(-2), minN)

	maxF, err := newResults().MaxOfFloats(ctx, f)
	require.NoError(t, err)
	assert.InDelta(t, 4.5, maxF, 1e-9)

	minB, err := newResults().MinOfBigInts(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, "-2", minB.String())

	maxB, err := newResults().MaxOfBigInts(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, "9", maxB.String())

	odd, err := newResults().FilterAll(ctx, func(it item) bool { return it.N%2 != 0 })
	require.NoError(t, err)
	assert.Equal(t, []item{{9}, {1}}, odd)

	labels, err := query.MapAll(ctx, newResults(), func(it item) string { return fmt.Sprint(it.N) })
	require.NoError(t, err)
	assert.Equal(t, []string{"4", "-2", "9", "1"}, labels)
}

func TestExtremaOfNothing(t *testing.T) {
	empty := query.NewResults[item](&query.QueryPage[item]{}, nil)

	_, err := empty.MaxOfInts(context.Background(), func(it item) int64 { return int64(it.N) })
	assert.ErrorIs(t, err, query.ErrNoRecords)
	_, err = empty.MinOfFloats(context.Background(), func(it item) float64 { return float64(it.N) })
	assert.ErrorIs(t, err, query.ErrNoRecords)

	sum, err := empty.SumOfInts(context.Background(), func(it item) int64 { return int64(it.N) })
	require.NoError(t, err)
	assert.Zero(t, sum)
}

func TestForEachPageParallel(t *testing.T) {
	t.Run("visits every record", func(t *testing.T) {
		var fetches int
		r := pagedResults([][]int{{1, 2, 3}, {4, 5}}, &fetches)

		var total atomic.Int64
		err := r.ForEachPageParallel(context.Background(), func(_ context.Context, it item) error {
			total.Add(int64(it.N))
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, int64(15), total.Load())
		assert.Equal(t, 1, fetches)
	})

	t.Run("errors stop after the page", func(t *testing.T) {
		var fetches int
		r := pagedResults([][]int{{1, 2, 3}, {4}}, &fetches)
		errOdd := errors.New("odd")

		err := r.ForEachPageParallel(context.Background(), func(_ context.Context, it item) error {
			if it.N%2 != 0 {
				return fmt.Errorf("record %d: %w", it.N, errOdd)
			}
			return nil
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, errOdd)
		assert.Contains(t, err.Error(), "record 1")
		assert.Contains(t, err.Error(), "record 3")
		assert.Zero(t, fetches)
	})
}
