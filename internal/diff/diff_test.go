package diff_test

import (
	"bytes"
	"context"
	"database/sql"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koba/db-sync/internal/dialect"
	"github.com/koba/db-sync/internal/diff"
	"github.com/koba/db-sync/internal/schema"
	"github.com/koba/db-sync/internal/snapshot"
)

// typesDriver only resolves types; the diff never saves tables.
type typesDriver struct{}

func (typesDriver) Types() *schema.TypeRegistry                            { return dialect.MySQL().Types() }
func (typesDriver) Handler() schema.Handler                                { return nil }
func (typesDriver) BeginTransaction(context.Context, *sql.TxOptions) error { return nil }
func (typesDriver) CommitTransaction(context.Context) error                { return nil }
func (typesDriver) RollbackTransaction(context.Context) error              { return nil }

func usersState() *schema.State {
	types := dialect.MySQL().Types()
	state := schema.NewState("users")
	state.RegisterColumn(schema.NewColumn(types, "id").Primary())
	state.RegisterColumn(schema.NewColumn(types, "email").String(120))
	state.RegisterColumn(schema.NewColumn(types, "name").String(64))
	state.RegisterColumn(schema.NewColumn(types, "legacy").Integer())
	state.RegisterIndex(schema.NewIndex("users_email_index", "email"))
	return state
}

func TestCompare(t *testing.T) {
	users := schema.ExistingTable(typesDriver{}, usersState())
	users.SetName("members")
	require.NoError(t, users.RenameColumn("name", "full_name"))
	require.NoError(t, users.DropColumn("legacy"))
	require.NoError(t, users.DropIndex("email"))
	users.Column("email").String(200)
	users.Column("age").Integer()

	posts := schema.NewTable(typesDriver{}, "posts")
	posts.Column("id").Primary()

	logs := schema.ExistingTable(typesDriver{}, schema.NewState("logs"))
	require.NoError(t, logs.DeclareDropped())

	unchanged := schema.ExistingTable(typesDriver{}, usersState())

	result := diff.Compare([]*schema.Table{users, posts, logs, unchanged})
	require.True(t, result.HasChanges())
	require.Len(t, result.SchemaDiffs, 3)

	members := result.Table("members")
	require.NotNil(t, members)
	assert.Equal(t, diff.ActionModify, members.Action)
	assert.Equal(t, "users", members.OldName)
	assert.Equal(t, []string{"age"}, members.Columns(diff.ActionAdd))
	assert.Equal(t, []string{"legacy"}, members.Columns(diff.ActionDrop))
	assert.Equal(t, []string{"email"}, members.Columns(diff.ActionModify))
	assert.Equal(t, []string{"full_name"}, members.Columns(diff.ActionRename))
	require.Len(t, members.IndexChanges, 1)
	assert.Equal(t, diff.IndexChange{IndexName: "users_email_index", Action: diff.ActionDrop, OldIndex: users.InitialState().Indexes()[0]},
		members.IndexChanges[0])
	assert.Nil(t, members.PrimaryKeyChange)

	assert.Equal(t, diff.ActionAdd, result.Table("posts").Action)
	assert.Same(t, posts.State(), result.Table("posts").NewSchema)
	assert.Equal(t, diff.ActionDrop, result.Table("logs").Action)
	assert.Nil(t, result.Table("users"))
}

func TestCompareSnapshots(t *testing.T) {
	types := dialect.MySQL().Types()
	logs := schema.NewState("logs")
	logs.RegisterColumn(schema.NewColumn(types, "id").BigPrimary())
	posts := schema.NewState("posts")
	posts.RegisterColumn(schema.NewColumn(types, "id").Primary())

	keyed := usersState()
	keyed.SetPrimaryKeys([]string{"id", "email"})

	before := &snapshot.Snapshot{
		Names:  []string{"logs", "users"},
		Tables: map[string]*schema.State{"logs": logs, "users": usersState()},
	}
	after := &snapshot.Snapshot{
		Names:  []string{"posts", "users"},
		Tables: map[string]*schema.State{"posts": posts, "users": keyed},
	}

	result := diff.CompareSnapshots(before, after)
	require.Len(t, result.SchemaDiffs, 3)

	assert.Equal(t, "posts", result.SchemaDiffs[0].TableName)
	assert.Equal(t, diff.ActionAdd, result.SchemaDiffs[0].Action)

	users := result.SchemaDiffs[1]
	assert.Equal(t, diff.ActionModify, users.Action)
	assert.Empty(t, users.OldName)
	assert.Equal(t, &diff.PrimaryKeyChange{Old: []string{"id"}, New: []string{"id", "email"}}, users.PrimaryKeyChange)

	assert.Equal(t, "logs", result.SchemaDiffs[2].TableName)
	assert.Equal(t, diff.ActionDrop, result.SchemaDiffs[2].Action)

	assert.False(t, diff.CompareSnapshots(before, before).HasChanges())
}

func TestDisplay(t *testing.T) {
	noColor := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = noColor })

	var buf bytes.Buffer
	diff.Display(&buf, &diff.DiffResult{})
	assert.Equal(t, "No differences found.\n", buf.String())

	types := dialect.MySQL().Types()
	posts := schema.NewState("posts")
	posts.RegisterColumn(schema.NewColumn(types, "id").Primary())
	posts.RegisterColumn(schema.NewColumn(types, "title").String(0))

	result := &diff.DiffResult{SchemaDiffs: []*diff.SchemaDiff{
		{TableName: "posts", Action: diff.ActionAdd, NewSchema: posts},
		{TableName: "logs", Action: diff.ActionDrop},
		{
			TableName: "members",
			OldName:   "users",
			Action:    diff.ActionModify,
			ColumnChanges: []diff.ColumnChange{
				{ColumnName: "full_name", Action: diff.ActionRename, OldColumn: schema.NewColumn(types, "name")},
				{ColumnName: "age", Action: diff.ActionAdd},
			},
			IndexChanges:      []diff.IndexChange{{IndexName: "users_email_index", Action: diff.ActionDrop}},
			ForeignKeyChanges: []diff.ForeignKeyChange{{FKName: "members_group_foreign", Action: diff.ActionAdd}},
			PrimaryKeyChange:  &diff.PrimaryKeyChange{Old: []string{"id"}, New: []string{"id", "email"}},
		},
	}}

	buf.Reset()
	diff.Display(&buf, result)
	assert.Equal(t, `=== Schema Differences ===

Table: posts
  Action: ADD (new table)
  Columns: 2

Table: logs
  Action: DROP (removed table)

Table: members
  Action: MODIFY
  Renamed from: users
  Column changes:
    - full_name: RENAME from name
    - age: ADD
  Index changes:
    - users_email_index: DROP
  Foreign key changes:
    - members_group_foreign: ADD
  Primary key: (id) -> (id, email)

`, buf.String())
}
