package journal

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"stakeledger/core/events"
)

func TestJournalAssignsSequences(t *testing.T) {
	j, err := Open("")
	require.NoError(t, err)
	defer j.Close()

	j.Emit(events.Staked{Pool: "p", Owner: "a", Amount: 10})
	j.Emit(events.RewardsClaimed{Pool: "p", Owner: "a", Amount: 3})
	j.Emit(events.Staked{Pool: "p", Owner: "b", Amount: 20})
	require.EqualValues(t, 3, j.Last())

	all, err := j.Since(0, 0, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.EqualValues(t, 1, all[0].Sequence)
	require.Equal(t, "b", all[2].Attr("owner"))

	page, err := j.Since(1, 1, "")
	require.NoError(t, err)
	require.Len(t, page, 1)
	require.EqualValues(t, 2, page[0].Sequence)

	staked, err := j.Since(0, 10, events.TypeStaked)
	require.NoError(t, err)
	require.Len(t, staked, 2)
}

func TestJournalResumesAfterReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events")
	j, err := Open(path)
	require.NoError(t, err)
	j.Emit(events.PoolSettled{Pool: "p", Accumulator: "5"})
	require.NoError(t, j.Close())

	j, err = Open(path)
	require.NoError(t, err)
	defer j.Close()
	require.EqualValues(t, 1, j.Last())
	j.Emit(events.PoolSettled{Pool: "p", Accumulator: "9"})

	all, err := j.Since(0, 0, "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, "9", all[1].Attr("accumulator"))
}

func TestJournalClosed(t *testing.T) {
	j, err := Open("")
	require.NoError(t, err)
	require.NoError(t, j.Close())
	_, err = j.Since(0, 1, "")
	require.ErrorIs(t, err, ErrClosed)
}
