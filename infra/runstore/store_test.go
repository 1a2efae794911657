package runstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	t.Cleanup(mr.Close)

	s := NewWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "test")
	t.Cleanup(func() { s.Close() })
	return s, mr
}

func TestSaveLoad(t *testing.T) {
	s, mr := setupTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Ping(ctx))

	finished := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	in := Summary{
		RunID:      "r1",
		Instance:   "day-01",
		Converged:  true,
		Reason:     "converged",
		Iterations: 4,
		Welfare:    -12.5,
		Elapsed:    1500 * time.Millisecond,
		Output:     "out/day-01.xml",
		Finished:   finished,
	}
	require.NoError(t, s.Save(ctx, in))

	assert.True(t, mr.Exists("flexmarket:test:run:r1"))
	assert.Equal(t, "day-01", mr.HGet("flexmarket:test:run:r1", "instance"))

	out, err := s.Load(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestLoadNotFound(t *testing.T) {
	s, _ := setupTestStore(t)
	_, err := s.Load(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSaveRejectsEmptyID(t *testing.T) {
	s, _ := setupTestStore(t)
	assert.Error(t, s.Save(context.Background(), Summary{}))
}

func TestListOrder(t *testing.T) {
	s, mr := setupTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.Save(ctx, Summary{RunID: id, Finished: base.Add(time.Duration(i) * time.Hour)}))
	}

	all, err := s.List(ctx, 0)
	require.NoError(t, err)
	ids := make([]string, len(all))
	for i, sum := range all {
		ids[i] = sum.RunID
	}
	assert.Equal(t, []string{"c", "b", "a"}, ids)

	mr.Del("flexmarket:test:run:b")
	two, err := s.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, two, 1)
	assert.Equal(t, "c", two[0].RunID)
}

func TestConfig(t *testing.T) {
	c := Config{}
	assert.False(t, c.Enabled())
	c.SetDefaults()
	assert.Equal(t, "default", c.Namespace)
	assert.Error(t, Config{DB: -1}.Validate())
}
