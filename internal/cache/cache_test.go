package cache

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/ocr-enricher/internal/repository"
)

func stores(t *testing.T) map[string]Store {
	t.Helper()

	mem, err := NewMemory(8)
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	rdb, err := NewRedis("redis://" + mr.Addr() + "/0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })

	db, err := repository.Open(context.Background(), repository.Config{Driver: "sqlite", DSN: ":memory:"}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { repository.Close(db, nil) })
	require.NoError(t, repository.Migrate(db, nil))

	return map[string]Store{
		"memory": mem,
		"redis":  rdb,
		"sql":    NewSQL(db.Driver),
	}
}

func TestStore_GetMiss(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			v, ok, err := s.Get(context.Background(), "nope")
			require.NoError(t, err)
			assert.False(t, ok)
			assert.Empty(t, v)
		})
	}
}

func TestStore_SetIfAbsent(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.Set(ctx, "fp", "first"))
			require.NoError(t, s.Set(ctx, "fp", "second"))

			v, ok, err := s.Get(ctx, "fp")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "first", v)
		})
	}
}

func TestStore_EmptyTextIsAHit(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.Set(ctx, "blank", ""))
			v, ok, err := s.Get(ctx, "blank")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "", v)
		})
	}
}

func TestStore_Ping(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			assert.NoError(t, s.Ping(context.Background()))
		})
	}
}

func TestRedis_KeysArePrefixed(t *testing.T) {
	mr := miniredis.RunT(t)
	r, err := NewRedis("redis://" + mr.Addr())
	require.NoError(t, err)
	defer r.Close()

	require.NoError(t, r.Set(context.Background(), "abc", "text"))
	got, err := mr.Get(KeyPrefix + "abc")
	require.NoError(t, err)
	assert.Equal(t, "text", got)
	assert.Zero(t, mr.TTL(KeyPrefix+"abc"))
}

func TestRedis_UnreachableIsAnError(t *testing.T) {
	mr := miniredis.RunT(t)
	r, err := NewRedis("redis://" + mr.Addr())
	require.NoError(t, err)
	defer r.Close()
	mr.Close()

	_, _, err = r.Get(context.Background(), "abc")
	assert.Error(t, err)
	assert.Error(t, r.Ping(context.Background()))
}

func TestNewRedis_BadURL(t *testing.T) {
	_, err := NewRedis("not a url")
	assert.Error(t, err)
}

func TestMemory_Evicts(t *testing.T) {
	m, err := NewMemory(2)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, m.Set(ctx, "a", "1"))
	require.NoError(t, m.Set(ctx, "b", "2"))
	require.NoError(t, m.Set(ctx, "c", "3"))
	assert.Equal(t, 2, m.Len())
	_, ok, _ := m.Get(ctx, "a")
	assert.False(t, ok)
}
