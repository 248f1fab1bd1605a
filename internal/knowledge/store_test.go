package knowledge

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "lessons.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStoreAddAndLookup(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.AddLesson(ctx, Lesson{
		ErrorType:  "port_conflict",
		Issue:      "port 3000 already in use by old pm2 process",
		Resolution: "pm2 delete all, then restart the app",
		Project:    "acme-app",
	}))
	require.NoError(t, store.AddLesson(ctx, Lesson{
		ErrorType:  "port_conflict",
		Issue:      "nginx holding port 80",
		Resolution: "systemctl stop nginx before binding",
	}))
	require.NoError(t, store.AddLesson(ctx, Lesson{
		ErrorType:  "permission",
		Issue:      "cannot write /var/www",
		Resolution: "chown deploy:deploy /var/www",
	}))

	lessons, err := store.Lookup(ctx, "port_conflict", 5)
	require.NoError(t, err)
	require.Len(t, lessons, 2)
	// Newest first.
	assert.Equal(t, "nginx holding port 80", lessons[0].Issue)
	assert.Equal(t, "acme-app", lessons[1].Project)
}

func TestStoreLookupCapped(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		require.NoError(t, store.AddLesson(ctx, Lesson{
			ErrorType:  "not_found",
			Issue:      "module missing",
			Resolution: "npm install",
		}))
	}

	lessons, err := store.Lookup(ctx, "not_found", 3)
	require.NoError(t, err)
	assert.Len(t, lessons, 3)
}

func TestStoreLookupUnknownType(t *testing.T) {
	store := newTestStore(t)

	lessons, err := store.Lookup(context.Background(), "disk", 5)
	require.NoError(t, err)
	assert.Empty(t, lessons)
}

func TestStoreReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lessons.db")
	ctx := context.Background()

	store, err := NewStore(path)
	require.NoError(t, err)
	require.NoError(t, store.AddLesson(ctx, Lesson{
		ErrorType:  "connection",
		Issue:      "db refused connections",
		Resolution: "start postgres first",
	}))
	require.NoError(t, store.Close())

	reopened, err := NewStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	lessons, err := reopened.Lookup(ctx, "connection", 5)
	require.NoError(t, err)
	require.Len(t, lessons, 1)
	assert.Equal(t, "start postgres first", lessons[0].Resolution)
}
