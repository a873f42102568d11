package snapshot

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStores(t *testing.T) map[string]Store {
	t.Helper()
	sqliteStore, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "layouts.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqliteStore.Close() })

	stores := map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": sqliteStore,
	}

	// DOCKBUS_TEST_REDIS_URL must name a scratch database: it is flushed.
	if url := os.Getenv("DOCKBUS_TEST_REDIS_URL"); url != "" {
		redisStore, err := OpenRedis(context.Background(), url)
		require.NoError(t, err)
		require.NoError(t, redisStore.client.FlushDB(context.Background()).Err())
		t.Cleanup(func() { redisStore.Close() })
		stores["redis"] = redisStore
	}
	return stores
}

func TestStore_SaveLoad(t *testing.T) {
	ctx := context.Background()
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.Save(ctx, "s1", "work", []byte(`{"v":1}`)))
			got, err := store.Load(ctx, "s1", "work")
			require.NoError(t, err)
			assert.JSONEq(t, `{"v":1}`, string(got))

			require.NoError(t, store.Save(ctx, "s1", "work", []byte(`{"v":2}`)))
			got, err = store.Load(ctx, "s1", "work")
			require.NoError(t, err)
			assert.JSONEq(t, `{"v":2}`, string(got))
		})
	}
}

func TestStore_NotFound(t *testing.T) {
	ctx := context.Background()
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.Load(ctx, "s1", "missing")
			assert.True(t, errors.Is(err, ErrNotFound))
		})
	}
}

func TestStore_SessionsAreIsolated(t *testing.T) {
	ctx := context.Background()
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.Save(ctx, "a", "x", []byte("1")))
			_, err := store.Load(ctx, "b", "x")
			assert.True(t, errors.Is(err, ErrNotFound))
		})
	}
}

func TestStore_ListAndDelete(t *testing.T) {
	ctx := context.Background()
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.Save(ctx, "s", "zeta", []byte("1")))
			require.NoError(t, store.Save(ctx, "s", "alpha", []byte("2")))
			require.NoError(t, store.Save(ctx, "other", "beta", []byte("3")))

			names, err := store.List(ctx, "s")
			require.NoError(t, err)
			assert.Equal(t, []string{"alpha", "zeta"}, names)

			require.NoError(t, store.Delete(ctx, "s", "alpha"))
			names, err = store.List(ctx, "s")
			require.NoError(t, err)
			assert.Equal(t, []string{"zeta"}, names)
		})
	}
}

func TestStore_ListIgnoresLookalikeSessions(t *testing.T) {
	ctx := context.Background()
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.Save(ctx, "a", "x", []byte("1")))
			require.NoError(t, store.Save(ctx, "a:b", "y", []byte("2")))
			require.NoError(t, store.Save(ctx, "a*", "z", []byte("3")))
			require.NoError(t, store.Save(ctx, "[a]", "w", []byte("4")))

			for session, want := range map[string][]string{
				"a":   {"x"},
				"a:b": {"y"},
				"a*":  {"z"},
				"[a]": {"w"},
			} {
				names, err := store.List(ctx, session)
				require.NoError(t, err)
				assert.Equal(t, want, names, "session %q", session)
			}
		})
	}
}

func TestStore_ValidatesKey(t *testing.T) {
	ctx := context.Background()
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, store.Save(ctx, "", "x", nil))
			assert.Error(t, store.Save(ctx, "s", " ", nil))
			_, err := store.Load(ctx, "s", "")
			assert.Error(t, err)
		})
	}
}

func TestMemoryStore_CopiesData(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	buf := []byte("abc")
	require.NoError(t, m.Save(ctx, "s", "n", buf))
	buf[0] = 'x'

	got, _ := m.Load(ctx, "s", "n")
	assert.Equal(t, "abc", string(got))
	got[1] = 'y'
	again, _ := m.Load(ctx, "s", "n")
	assert.Equal(t, "abc", string(again))
}

func TestOpen_Drivers(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, Config{})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	s, err = Open(ctx, Config{Driver: "sqlite", SQLitePath: ":memory:"})
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, s)
	s.Close()

	_, err = Open(ctx, Config{Driver: "etcd"})
	assert.Error(t, err)

	_, err = Open(ctx, Config{Driver: "sqlite"})
	assert.Error(t, err)
}

func TestOpenRedis_Errors(t *testing.T) {
	ctx := context.Background()

	_, err := OpenRedis(ctx, "")
	assert.Error(t, err)

	_, err = OpenRedis(ctx, "not-a-url")
	assert.Error(t, err)
}

func TestLayoutKey(t *testing.T) {
	assert.Equal(t, "layout:s1:work", LayoutKey("s1", "work"))
	assert.Equal(t, "layouts:s1", IndexKey("s1"))
	assert.NotEqual(t, IndexKey("a:b"), LayoutKey("a", "b"))
}
