package sqlitestore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guidelab/stageground/staging"
)

var testKey = staging.RepositoryKey{Owner: "who", Repo: "smart-anc", Branch: "main"}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(filepath.Join(t.TempDir(), "staging.db"), 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStore_PersistAndLoad(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, err := store.Load(ctx, testKey)
	assert.ErrorIs(t, err, staging.ErrSessionNotFound)

	session := staging.NewSession(testKey, "rev-1")
	session.Put("input/anc.bpmn", "<definitions/>", time.Now())
	session.Message = "stage anc process"

	id, err := store.Persist(ctx, session, "")
	require.NoError(t, err)
	assert.Equal(t, id, session.LatestSavePointID())

	loaded, err := store.Load(ctx, testKey)
	require.NoError(t, err)
	assert.Equal(t, "<definitions/>", loaded.Files["input/anc.bpmn"].Content)
	assert.Equal(t, "stage anc process", loaded.Message)
	assert.Equal(t, "rev-1", loaded.BaseRevision)
	assert.Equal(t, id, loaded.LatestSavePointID())
}

func TestStore_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "staging.db")

	store, err := New(dbPath, 0)
	require.NoError(t, err)
	session := staging.NewSession(testKey, "rev-1")
	session.Put("a.dmn", "tables", time.Now())
	id, err := store.Persist(ctx, session, "")
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := New(dbPath, 0)
	require.NoError(t, err)
	defer reopened.Close()

	loaded, err := reopened.Load(ctx, testKey)
	require.NoError(t, err)
	assert.Equal(t, "tables", loaded.Files["a.dmn"].Content)
	assert.Equal(t, id, loaded.LatestSavePointID())
}

func TestStore_StaleWrite(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	session := staging.NewSession(testKey, "rev-1")
	session.Put("a.bpmn", "v1", time.Now())
	id1, err := store.Persist(ctx, session, "")
	require.NoError(t, err)

	other, err := store.Load(ctx, testKey)
	require.NoError(t, err)
	other.Put("b.dmn", "tables", time.Now())
	_, err = store.Persist(ctx, other, id1)
	require.NoError(t, err)

	// The losing writer is rejected and the stored record is unchanged.
	session.Put("a.bpmn", "v2", time.Now())
	_, err = store.Persist(ctx, session, id1)
	assert.ErrorIs(t, err, staging.ErrStaleWrite)

	latest, err := store.Load(ctx, testKey)
	require.NoError(t, err)
	assert.Equal(t, "v1", latest.Files["a.bpmn"].Content)
	assert.Contains(t, latest.Files, "b.dmn")
}

func TestStore_RollbackAndList(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	session := staging.NewSession(testKey, "rev-1")
	session.Put("a.bpmn", "v1", time.Now())
	id1, err := store.Persist(ctx, session, "")
	require.NoError(t, err)

	session.Put("a.bpmn", "v2", time.Now())
	_, err = store.Persist(ctx, session, id1)
	require.NoError(t, err)

	infos, err := store.ListSavePoints(ctx, testKey)
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, id1, infos[0].ID)

	restored, err := store.Rollback(ctx, testKey, id1)
	require.NoError(t, err)
	assert.Equal(t, "v1", restored.Files["a.bpmn"].Content)

	infos, err = store.ListSavePoints(ctx, testKey)
	require.NoError(t, err)
	require.Len(t, infos, 1)

	_, err = store.Rollback(ctx, testKey, "unknown")
	assert.ErrorIs(t, err, staging.ErrSavePointNotFound)
}

func TestStore_Discard(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	session := staging.NewSession(testKey, "")
	session.Put("a.bpmn", "v1", time.Now())
	_, err := store.Persist(ctx, session, "")
	require.NoError(t, err)

	require.NoError(t, store.Discard(ctx, testKey))
	_, err = store.Load(ctx, testKey)
	assert.ErrorIs(t, err, staging.ErrSessionNotFound)

	require.NoError(t, store.Discard(ctx, testKey))
}
