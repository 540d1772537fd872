package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRecordAndRecent(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := Open(path)
	require.NoError(t, err)

	base := time.Unix(1700000000, 0)
	for i := range 3 {
		id, err := j.Record(ctx, Entry{
			SessionID: "abc",
			Parties:   3,
			Field:     "bn254",
			Period:    2,
			Length:    3 + i,
			Result:    13.111,
			Started:   base.Add(time.Duration(i) * time.Minute),
			Finished:  base.Add(time.Duration(i)*time.Minute + time.Second),
		})
		require.NoError(t, err)
		require.Equal(t, int64(i+1), id)
	}
	_, err = j.Record(ctx, Entry{
		SessionID: "def",
		Status:    StatusFailed,
		Error:     "link down",
		Started:   base.Add(time.Hour),
		Finished:  base.Add(time.Hour),
	})
	require.NoError(t, err)

	got, err := j.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, StatusFailed, got[0].Status)
	require.Equal(t, "link down", got[0].Error)
	require.Equal(t, StatusOK, got[1].Status)
	require.Equal(t, 5, got[1].Length)
	require.True(t, got[1].Started.Equal(base.Add(2*time.Minute)))
	require.InDelta(t, 13.111, got[1].Result, 1e-12)

	require.NoError(t, j.Close())
	require.NoError(t, j.Close())
	_, err = j.Recent(ctx, 1)
	require.Error(t, err)

	// Entries survive reopening.
	j, err = Open(path)
	require.NoError(t, err)
	defer j.Close()
	all, err := j.Recent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 4)
}

func TestOpenRejectsEmptyPath(t *testing.T) {
	_, err := Open("")
	require.Error(t, err)
}
