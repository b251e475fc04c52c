package kv

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_HashRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.HSet(ctx, "job:1", map[string]string{"a": "1", "b": "2"}))
	require.NoError(t, s.HSet(ctx, "job:1", map[string]string{"b": "3", "c": "4"}))

	got, err := s.HGetAll(ctx, "job:1")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "1", "b": "3", "c": "4"}, got)
}

func TestMemoryStore_HGetAllAbsentIsEmptyMap(t *testing.T) {
	s := NewMemoryStore()
	got, err := s.HGetAll(context.Background(), "missing")
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NotNil(t, got)
}

func TestMemoryStore_GetSetExistsDel(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, "k", "v", 0))
	v, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", v)

	exists, err := s.Exists(ctx, "k")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, s.Del(ctx, "k"))
	exists, err = s.Exists(ctx, "k")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestMemoryStore_TTLExpiry(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.SetNow(func() time.Time { return base })

	require.NoError(t, s.Set(ctx, "seen:H", "1", 5*time.Second))

	s.SetNow(func() time.Time { return base.Add(4 * time.Second) })
	_, ok, err := s.Get(ctx, "seen:H")
	require.NoError(t, err)
	assert.True(t, ok)

	s.SetNow(func() time.Time { return base.Add(6 * time.Second) })
	_, ok, err = s.Get(ctx, "seen:H")
	require.NoError(t, err)
	assert.False(t, ok, "key must expire after its TTL elapses")
}

func TestMemoryStore_ScanCursorTerminatesAtZero(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Set(ctx, "zano:deposit:zano:pid"+string(rune('0'+i)), "x", 0))
	}
	require.NoError(t, s.Set(ctx, "zano:deposit:fusd:other", "x", 0))

	var keys []string
	cursor := "0"
	for {
		next, batch, err := s.Scan(ctx, "zano:deposit:zano:*", 2, cursor)
		require.NoError(t, err)
		keys = append(keys, batch...)
		cursor = next
		if cursor == "0" {
			break
		}
	}
	assert.Len(t, keys, 5)
}

func TestMemoryStore_JSONRoundTripAndFailOpen(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	type payload struct {
		Status string `json:"status"`
	}

	require.NoError(t, s.SetJSON(ctx, "status:1", payload{Status: "PENDING"}, 0))
	var out payload
	ok, err := s.GetJSON(ctx, "status:1", &out)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "PENDING", out.Status)

	require.NoError(t, s.Set(ctx, "status:2", "{not json", 0))
	ok, err = s.GetJSON(ctx, "status:2", &out)
	require.NoError(t, err)
	assert.False(t, ok, "malformed JSON must read as absent, not error")
}
