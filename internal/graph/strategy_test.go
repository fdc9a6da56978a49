package graph

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fanIn(t *testing.T, s Strategy, n int) (*stubNode, []*stubNode) {
	t.Helper()
	ids := NewIDGenerator()
	g := New(s)
	sink := newStub(ids, "")
	var leaves []*stubNode
	for _, c := range []string{"A", "B", "C", "D", "E"}[:n] {
		leaf := newStub(ids, c)
		_, err := g.AddPipe(leaf, sink)
		require.NoError(t, err)
		leaves = append(leaves, leaf)
	}
	return sink, leaves
}

func TestStrategies_MergeByKey(t *testing.T) {
	t.Parallel()

	for _, s := range []Strategy{Synchronous{}, FanOut{}, FanOut{Workers: 2}} {
		t.Run(s.Name(), func(t *testing.T) {
			t.Parallel()
			// --- Arrange ---
			sink, leaves := fanIn(t, s, 4)

			// --- Act ---
			data, err := sink.GetData(context.Background(), testJob())

			// --- Assert ---
			require.NoError(t, err)
			assert.Len(t, data, 4)
			for _, l := range leaves {
				require.Contains(t, data, l.ConceptID())
				assert.Equal(t, 1, data[l.ConceptID()].Len())
				assert.EqualValues(t, 1, l.calls.Load(), "no caching, but each source is read once per job")
			}
		})
	}
}

func TestFanOut_RunsConcurrently(t *testing.T) {
	t.Parallel()

	sink, leaves := fanIn(t, FanOut{}, 5)
	for _, l := range leaves {
		l.delay = 100 * time.Millisecond
	}

	start := time.Now()
	_, err := sink.GetData(context.Background(), testJob())

	require.NoError(t, err)
	assert.Less(t, time.Since(start), 400*time.Millisecond, "siblings should be fetched in parallel")
}

func TestFanOut_FirstErrorCancelsSiblings(t *testing.T) {
	t.Parallel()

	sink, leaves := fanIn(t, FanOut{}, 3)
	boom := errors.New("boom")
	leaves[0].err = boom
	leaves[1].delay = 5 * time.Second
	leaves[2].delay = 5 * time.Second

	start := time.Now()
	_, err := sink.GetData(context.Background(), testJob())

	assert.ErrorIs(t, err, boom)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestSynchronous_StopsAtFirstError(t *testing.T) {
	t.Parallel()

	sink, leaves := fanIn(t, Synchronous{}, 3)
	boom := errors.New("boom")
	leaves[0].err = boom

	_, err := sink.GetData(context.Background(), testJob())

	assert.ErrorIs(t, err, boom)
	assert.EqualValues(t, 0, leaves[1].calls.Load())
}

func TestNewStrategy(t *testing.T) {
	t.Parallel()

	s, err := NewStrategy("sync", 0)
	require.NoError(t, err)
	assert.Equal(t, StrategySync, s.Name())

	s, err = NewStrategy("FanOut", 4)
	require.NoError(t, err)
	assert.Equal(t, FanOut{Workers: 4}, s)

	_, err = NewStrategy("multiprocess", 0)
	assert.Error(t, err)
}
