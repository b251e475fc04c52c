package jobstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"zanowatcher.com/internal/kv"
)

func newTestRepo() *Repo {
	return NewRepo(kv.NewMemoryStore(), "zano", 24*time.Hour, 7*24*time.Hour, 4*time.Hour)
}

func TestRepo_CreateLoadPatchDeleteJob(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo()

	job := &Job{
		Ticker:          "zano",
		Address:         "A",
		PaymentId:       "pid1",
		ClientReference: "r1",
		MinConf:         6,
		CreatedAt:       time.Now(),
	}
	require.NoError(t, r.CreateJob(ctx, job))

	got, ok, err := r.LoadJob(ctx, "zano", "pid1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "A", got.Address)
	assert.Equal(t, 6, got.MinConf)

	require.NoError(t, r.PatchJob(ctx, "zano", "pid1", Patch{
		FieldMinConf:        3,
		FieldDynMinConfAppl: true,
	}))

	got, ok, err = r.LoadJob(ctx, "zano", "pid1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 3, got.MinConf)
	assert.True(t, got.DynamicMinConfApplied)
	assert.Equal(t, "A", got.Address, "unpatched fields must survive a partial write")

	require.NoError(t, r.DeleteJob(ctx, "zano", "pid1"))
	_, ok, err = r.LoadJob(ctx, "zano", "pid1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRepo_StatusRoundTrip(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo()

	s := &Status{
		Status:                StatusConfirming,
		Ticker:                "zano",
		PaymentId:             "pid1",
		Address:               "A",
		Confirmations:         2,
		RequiredConfirmations: 6,
		UpdatedAt:             time.Now(),
	}
	require.NoError(t, r.SaveStatus(ctx, s))

	got, ok, err := r.LoadStatus(ctx, "zano", "pid1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, StatusConfirming, got.Status)
	assert.Equal(t, 2, got.Confirmations)

	_, ok, err = r.LoadStatus(ctx, "zano", "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRepo_SeenGuard(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo()

	ok, err := r.IsSeen(ctx, "H")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, r.MarkSeen(ctx, "H"))

	ok, err = r.IsSeen(ctx, "H")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRepo_ScanJobsPagesToZero(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo()

	for i := 0; i < 3; i++ {
		require.NoError(t, r.CreateJob(ctx, &Job{Ticker: "zano", PaymentId: string(rune('a' + i)), Address: "A"}))
	}

	var keys []string
	cursor := "0"
	for {
		next, batch, err := r.ScanJobs(ctx, "zano", 2, cursor)
		require.NoError(t, err)
		keys = append(keys, batch...)
		cursor = next
		if cursor == "0" {
			break
		}
	}
	assert.Len(t, keys, 3)
}
