package snapshot_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koba/db-sync/internal/database"
	"github.com/koba/db-sync/internal/dialect"
	"github.com/koba/db-sync/internal/logging"
	"github.com/koba/db-sync/internal/schema"
	"github.com/koba/db-sync/internal/snapshot"
)

func seededSQLite(t *testing.T) *database.Driver {
	t.Helper()
	ctx := context.Background()
	cfg := database.Config{Type: "sqlite", Database: filepath.Join(t.TempDir(), "source.db")}
	driver, err := database.Open(ctx, cfg, logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { driver.Close() })

	users, err := driver.Table(ctx, "users")
	require.NoError(t, err)
	users.Column("id").Primary()
	users.Column("email").String(120).SetNullable(false)
	users.Column("status").Enum("on", "off").SetDefault("on")
	_, err = users.Index("email")
	require.NoError(t, err)
	require.NoError(t, users.Save(ctx, schema.DoAll, true))

	posts, err := driver.Table(ctx, "posts")
	require.NoError(t, err)
	posts.Column("id").Primary()
	posts.Column("title").String(200)
	posts.Column("created_at").Timestamp().SetDefault(schema.Fragment("CURRENT_TIMESTAMP"))
	require.NoError(t, posts.Save(ctx, schema.DoAll, true))

	return driver
}

func TestCreateAndLoad(t *testing.T) {
	ctx := context.Background()
	source := seededSQLite(t)
	path := filepath.Join(t.TempDir(), "nested", "snap.db")

	snap, err := snapshot.Create(ctx, source, nil, path)
	require.NoError(t, err)
	assert.Equal(t, []string{"posts", "users"}, snap.Names)
	assert.Equal(t, "sqlite", snap.Metadata["dialect"])
	assert.NotEmpty(t, snap.Metadata["created_at"])

	loaded, err := snapshot.Load(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, snap.Names, loaded.Names)
	assert.Equal(t, snap.Metadata, loaded.Metadata)

	d, err := loaded.Dialect()
	require.NoError(t, err)
	assert.Equal(t, "sqlite", d.Name())

	for n, state := range loaded.States() {
		original := snap.Tables[snap.Names[n]]
		assert.Equal(t, original.Name(), state.Name())
		assert.False(t, schema.NewComparator(original, state).HasChanges(), state.Name())
	}

	status := loaded.Tables["users"].FindColumn("status")
	assert.Equal(t, []string{"on", "off"}, status.EnumValues)
	assert.Equal(t, "on", status.Default)
	assert.True(t, loaded.Tables["users"].HasIndex([]string{"email"}))
	assert.Equal(t, schema.Fragment("CURRENT_TIMESTAMP"), loaded.Tables["posts"].FindColumn("created_at").Default)
}

func TestCreateSelectedTablesReplacesFile(t *testing.T) {
	ctx := context.Background()
	source := seededSQLite(t)
	path := filepath.Join(t.TempDir(), "snap.db")

	_, err := snapshot.Create(ctx, source, nil, path)
	require.NoError(t, err)

	_, err = snapshot.Create(ctx, source, []string{"users"}, path)
	require.NoError(t, err)

	loaded, err := snapshot.Load(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, []string{"users"}, loaded.Names)
	assert.Len(t, loaded.Tables, 1)
}

type failingSource struct{}

func (failingSource) Dialect() dialect.Dialect { return dialect.MySQL() }

func (failingSource) Tables(context.Context) ([]string, error) {
	return []string{"users"}, nil
}

func (failingSource) State(context.Context, string) (*schema.State, error) {
	return nil, errors.New("access denied")
}

func TestCreateSourceFailure(t *testing.T) {
	_, err := snapshot.Create(context.Background(), failingSource{}, nil, filepath.Join(t.TempDir(), "snap.db"))
	assert.EqualError(t, err, "failed to snapshot table users: access denied")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := snapshot.Load(context.Background(), filepath.Join(t.TempDir(), "missing.db"))
	assert.ErrorContains(t, err, "snapshot file does not exist")
}
