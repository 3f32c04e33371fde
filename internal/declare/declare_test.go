package declare_test

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koba/db-sync/internal/database"
	"github.com/koba/db-sync/internal/declare"
	"github.com/koba/db-sync/internal/logging"
	"github.com/koba/db-sync/internal/reflector"
	"github.com/koba/db-sync/internal/schema"
)

const initialDeclarations = `
tables:
  - name: groups
    columns:
      - {name: id, type: primary}
      - {name: title, type: string, size: 64}
  - name: users
    columns:
      - {name: id, type: primary}
      - {name: email, type: string, size: 120, nullable: false}
      - {name: name, type: string, size: 64}
      - {name: active, type: boolean, default: true}
      - {name: group_id, type: integer}
      - {name: created_at, type: timestamp, default_expr: CURRENT_TIMESTAMP}
    indexes:
      - {columns: [email], unique: true}
      - {columns: [name]}
    foreign_keys:
      - {columns: [group_id], references: groups, foreign_columns: [id], on_delete: cascade}
  - name: audit
    columns:
      - {name: id, type: primary}
  - name: old_logs
    drop: true
`

const renamedDeclarations = `
tables:
  - name: groups
    columns:
      - {name: id, type: primary}
      - {name: title, type: string, size: 64}
  - name: members
    rename_from: users
    columns:
      - {name: id, type: primary}
      - {name: email, type: string, size: 120, nullable: false}
      - {name: full_name, rename_from: name, type: string, size: 64}
      - {name: group_id, type: integer}
    indexes:
      - {name: members_email_unique, columns: [email], unique: true}
  - name: audit
    drop: true
  - name: old_logs
    drop: true
`

func openSQLite(t *testing.T) *database.Driver {
	t.Helper()
	cfg := database.Config{Type: "sqlite", Database: filepath.Join(t.TempDir(), "declare.db")}
	driver, err := database.Open(context.Background(), cfg, logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { driver.Close() })
	return driver
}

func apply(t *testing.T, driver *database.Driver, doc string) []*schema.Table {
	t.Helper()
	file, err := declare.Parse(strings.NewReader(doc))
	require.NoError(t, err)
	require.NoError(t, file.Validate())

	tables, err := declare.Apply(context.Background(), driver, file)
	require.NoError(t, err)
	return tables
}

func syncTables(t *testing.T, tables []*schema.Table) {
	t.Helper()
	r := reflector.New(logging.Discard())
	for _, table := range tables {
		r.AddTable(table)
	}
	require.NoError(t, r.Run(context.Background()))
}

func TestParse(t *testing.T) {
	file, err := declare.Parse(strings.NewReader(initialDeclarations))
	require.NoError(t, err)
	require.Len(t, file.Tables, 4)

	users := file.Tables[1]
	assert.Equal(t, "users", users.Name)
	require.Len(t, users.Columns, 6)
	assert.Equal(t, 120, *users.Columns[1].Size)
	assert.False(t, *users.Columns[1].Nullable)
	assert.Equal(t, true, users.Columns[3].Default)
	assert.Equal(t, "CURRENT_TIMESTAMP", users.Columns[5].DefaultExpr)
	assert.Equal(t, "groups", users.ForeignKeys[0].ForeignTable)
	assert.Nil(t, users.ForeignKeys[0].Index)
	assert.True(t, file.Tables[3].Drop)

	_, err = declare.Parse(strings.NewReader("tables:\n  - name: users\n    colums: []\n"))
	assert.ErrorContains(t, err, "colums")

	file, err = declare.Parse(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, file.Tables)
}

func TestLoad(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("decl", 0755))
	require.NoError(t, afero.WriteFile(fs, "decl/b_posts.yaml", []byte(`
tables:
  - name: posts
    columns:
      - {name: id, type: primary}
`), 0644))
	require.NoError(t, afero.WriteFile(fs, "decl/a_users.yml", []byte(`
tables:
  - name: users
    columns:
      - {name: id, type: primary}
`), 0644))
	require.NoError(t, afero.WriteFile(fs, "decl/notes.txt", []byte("not: [yaml"), 0644))

	file, err := declare.Load(fs, "decl")
	require.NoError(t, err)
	require.Len(t, file.Tables, 2)
	assert.Equal(t, "users", file.Tables[0].Name)
	assert.Equal(t, "posts", file.Tables[1].Name)

	file, err = declare.Load(fs, "decl/b_posts.yaml")
	require.NoError(t, err)
	require.Len(t, file.Tables, 1)

	_, err = declare.Load(fs, "missing.yaml")
	assert.ErrorContains(t, err, "failed to read declarations")

	require.NoError(t, afero.WriteFile(fs, "decl/c_again.yaml", []byte(`
tables:
  - name: users
    columns:
      - {name: id, type: primary}
`), 0644))
	_, err = declare.Load(fs, "decl")
	assert.EqualError(t, err, "table 'users' is declared twice")
}

func TestValidate(t *testing.T) {
	id := declare.ColumnDecl{Name: "id", Type: "primary"}

	tests := []struct {
		name   string
		tables []declare.TableDecl
		want   string
	}{
		{"missing name", []declare.TableDecl{{Columns: []declare.ColumnDecl{id}}}, "table declaration without name"},
		{"no columns", []declare.TableDecl{{Name: "users"}}, "table 'users' declares no columns"},
		{"untyped column", []declare.TableDecl{{Name: "users", Columns: []declare.ColumnDecl{{Name: "id"}}}},
			"table 'users': every column needs a name and a type"},
		{"foreign key", []declare.TableDecl{{
			Name:        "posts",
			Columns:     []declare.ColumnDecl{id},
			ForeignKeys: []declare.ForeignKeyDecl{{Columns: []string{"user_id"}, ForeignTable: "users"}},
		}}, "table 'posts': foreign key over [user_id] needs a table and matching columns"},
		{"dropped without columns", []declare.TableDecl{{Name: "users", Drop: true}}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := (&declare.File{Tables: tt.tables}).Validate()
			if tt.want == "" {
				assert.NoError(t, err)
				return
			}
			assert.EqualError(t, err, tt.want)
		})
	}
}

func TestApplyCreatesTables(t *testing.T) {
	driver := openSQLite(t)

	tables := apply(t, driver, initialDeclarations)
	require.Len(t, tables, 3, "old_logs does not exist and is skipped")

	users := tables[1]
	assert.Equal(t, schema.StatusNew, users.Status())
	assert.True(t, users.State().HasIndex([]string{"group_id"}))
	require.Len(t, users.ForeignKeys(), 1)
	assert.Equal(t, schema.Cascade, users.ForeignKeys()[0].OnDelete)
	assert.Equal(t, schema.NoAction, users.ForeignKeys()[0].OnUpdate)
	assert.Equal(t, schema.Fragment("CURRENT_TIMESTAMP"), users.State().FindColumn("created_at").Default)
	assert.False(t, users.State().FindColumn("email").Nullable)

	syncTables(t, tables)

	names, err := driver.Tables(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"audit", "groups", "users"}, names)

	// declaring the same file against the synced database is not a change
	for _, table := range apply(t, driver, initialDeclarations) {
		assert.Equal(t, schema.StatusExists, table.Status(), table.Name())
		assert.False(t, table.HasChanges(), table.Name())
	}
}

func TestApplyRenamesAndDrops(t *testing.T) {
	driver := openSQLite(t)
	syncTables(t, apply(t, driver, initialDeclarations))

	tables := apply(t, driver, renamedDeclarations)
	require.Len(t, tables, 3)

	groups, members, audit := tables[0], tables[1], tables[2]
	assert.False(t, groups.HasChanges())
	assert.Equal(t, schema.StatusDeclaredDropped, audit.Status())

	assert.Equal(t, "users", members.InitialName())
	assert.Equal(t, "members", members.Name())

	cmp := members.Comparator()
	assert.True(t, cmp.IsRenamed())

	var dropped []string
	for _, c := range cmp.DroppedColumns() {
		dropped = append(dropped, c.Name)
	}
	assert.ElementsMatch(t, []string{"active", "created_at"}, dropped)

	altered := cmp.AlteredColumns()
	require.Len(t, altered, 1)
	assert.Equal(t, "name", altered[0].Initial.Name)
	assert.Equal(t, "full_name", altered[0].Current.Name)

	assert.Empty(t, members.ForeignKeys())
	indexes := members.Indexes()
	require.Len(t, indexes, 1)
	assert.Equal(t, "members_email_unique", indexes[0].Name)
	assert.True(t, indexes[0].Unique)
}

func TestApplyColumnTypes(t *testing.T) {
	driver := openSQLite(t)

	tables := apply(t, driver, `
tables:
  - name: prices
    columns:
      - {name: id, type: bigPrimary}
      - {name: amount, type: decimal, precision: 10, scale: 3}
      - {name: state, type: enum, values: [open, closed], default: open}
      - {name: code, type: string}
`)
	prices := tables[0]
	amount := prices.State().FindColumn("amount")
	assert.Equal(t, 10, amount.Precision)
	assert.Equal(t, 3, amount.Scale)

	state := prices.State().FindColumn("state")
	assert.Equal(t, []string{"open", "closed"}, state.EnumValues)
	assert.Equal(t, "open", state.Default)

	file, err := declare.Parse(strings.NewReader(`
tables:
  - name: prices
    columns:
      - {name: total, type: money}
`))
	require.NoError(t, err)
	_, err = declare.Apply(context.Background(), driver, file)
	assert.ErrorContains(t, err, "table 'prices'")
	assert.ErrorContains(t, err, "undefined abstract type 'money'")
}
