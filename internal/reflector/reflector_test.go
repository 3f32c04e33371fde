package reflector_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/koba/db-sync/internal/dialect"
	"github.com/koba/db-sync/internal/generator"
	"github.com/koba/db-sync/internal/logging"
	"github.com/koba/db-sync/internal/reflector"
	"github.com/koba/db-sync/internal/schema"
)

// journal is the ordered log of calls shared by the drivers and handlers of a test.
type journal struct {
	entries []string
}

func (j *journal) add(entry string) {
	j.entries = append(j.entries, entry)
}

type loggingHandler struct {
	journal *journal
	fail    string
	// created keeps the state each table was created with.
	created map[string]*schema.State
}

func (h *loggingHandler) call(entry, table string) error {
	h.journal.add(entry)
	if table == h.fail {
		return errors.New("statement failed")
	}
	return nil
}

func (h *loggingHandler) HasTable(context.Context, string) (bool, error) { return false, nil }

func (h *loggingHandler) CreateTable(_ context.Context, t *schema.Table) error {
	h.created[t.Name()] = t.State().Clone()
	return h.call("create "+t.Name(), t.Name())
}

func (h *loggingHandler) SyncTable(_ context.Context, t *schema.Table, op schema.Operation) error {
	return h.call("sync "+t.Name()+" "+op.String(), t.Name())
}

func (h *loggingHandler) DropTable(_ context.Context, t *schema.Table) error {
	return h.call("drop "+t.Name(), t.Name())
}

func (h *loggingHandler) EraseTable(_ context.Context, t *schema.Table) error {
	return h.call("erase "+t.Name(), t.Name())
}

type mockDriver struct {
	mock.Mock
	name    string
	journal *journal
	handler *loggingHandler
}

func newMockDriver(name string, j *journal) *mockDriver {
	return &mockDriver{
		name:    name,
		journal: j,
		handler: &loggingHandler{journal: j, created: map[string]*schema.State{}},
	}
}

func (d *mockDriver) Types() *schema.TypeRegistry { return dialect.MySQL().Types() }
func (d *mockDriver) Handler() schema.Handler     { return d.handler }

func (d *mockDriver) BeginTransaction(ctx context.Context, opts *sql.TxOptions) error {
	d.journal.add("begin " + d.name)
	return d.Called(ctx, opts).Error(0)
}

func (d *mockDriver) CommitTransaction(ctx context.Context) error {
	d.journal.add("commit " + d.name)
	return d.Called(ctx).Error(0)
}

func (d *mockDriver) RollbackTransaction(ctx context.Context) error {
	d.journal.add("rollback " + d.name)
	return d.Called(ctx).Error(0)
}

func usersTable(driver schema.Driver) *schema.Table {
	types := driver.Types()
	state := schema.NewState("users")
	state.RegisterColumn(schema.NewColumn(types, "id").Primary())
	state.RegisterColumn(schema.NewColumn(types, "name").String(64))
	state.RegisterColumn(schema.NewColumn(types, "group_id").Integer())
	state.RegisterIndex(schema.NewIndex("users_name_index", "name"))
	state.RegisterForeignKey(schema.NewForeignKey("users_group_foreign", "group_id").References("groups", "id"))
	return schema.ExistingTable(driver, state)
}

func newTable(t *testing.T, driver schema.Driver, name string, references ...string) *schema.Table {
	t.Helper()
	table := schema.NewTable(driver, name)
	table.Column("id").Primary()
	for _, ref := range references {
		table.Column(ref + "_id").Integer()
		fk, err := table.ForeignKey([]string{ref + "_id"}, true)
		require.NoError(t, err)
		fk.References(ref, "id")
	}
	return table
}

func names(tables []*schema.Table) []string {
	result := make([]string, len(tables))
	for n, t := range tables {
		result[n] = t.Name()
	}
	return result
}

func TestSortedTables(t *testing.T) {
	driver := newMockDriver("main", &journal{})

	r := reflector.New(logging.Discard())
	r.AddTable(newTable(t, driver, "posts", "users"))
	r.AddTable(newTable(t, driver, "users"))

	sorted, err := r.SortedTables()
	require.NoError(t, err)
	assert.Equal(t, []string{"users", "posts"}, names(sorted))

	r = reflector.New(logging.Discard())
	r.AddTable(newTable(t, driver, "comments", "posts", "users", "comments"))
	r.AddTable(newTable(t, driver, "posts", "users", "categories"))
	r.AddTable(newTable(t, driver, "users"))

	sorted, err = r.SortedTables()
	require.NoError(t, err)
	assert.Equal(t, []string{"users", "posts", "comments"}, names(sorted))
	assert.Equal(t, []string{"comments", "posts", "users"}, names(r.Tables()))
}

func TestSortedTablesCycle(t *testing.T) {
	driver := newMockDriver("main", &journal{})

	r := reflector.New(logging.Discard())
	r.AddTable(newTable(t, driver, "a", "b"))
	r.AddTable(newTable(t, driver, "b", "a"))

	_, err := r.SortedTables()
	var cycle *reflector.CycleError
	require.ErrorAs(t, err, &cycle)
	assert.Equal(t, []string{"a", "b", "a"}, cycle.Path)
	assert.EqualError(t, err, "foreign key cycle between tables: a -> b -> a")

	// nothing runs when the order cannot be resolved
	assert.Error(t, r.Run(context.Background()))
	driver.AssertNotCalled(t, "BeginTransaction", mock.Anything, mock.Anything)
}

func TestRunPhases(t *testing.T) {
	ctx := context.Background()
	j := &journal{}
	driver := newMockDriver("main", j)
	driver.On("BeginTransaction", ctx, (*sql.TxOptions)(nil)).Return(nil).Once()
	driver.On("CommitTransaction", ctx).Return(nil).Once()

	users := usersTable(driver)
	require.NoError(t, users.DropIndex("name"))
	posts := newTable(t, driver, "posts", "users")

	r := reflector.New(logging.Discard())
	r.AddTable(posts)
	r.AddTable(users)
	require.True(t, r.HasChanges())
	require.NoError(t, r.Run(ctx))

	save := schema.DoAll &^ (schema.DropForeignKeys | schema.DropIndexes | schema.CreateForeignKeys)
	assert.Equal(t, []string{
		"begin main",
		"sync users drop-foreign-keys",
		"sync users drop-indexes",
		"sync users " + save.String(),
		"create posts",
		"sync users create-foreign-keys",
		"sync posts create-foreign-keys",
		"commit main",
	}, j.entries)

	assert.Empty(t, driver.handler.created["posts"].ForeignKeys())
	assert.False(t, users.HasChanges())
	assert.False(t, posts.HasChanges())
	driver.AssertExpectations(t)
}

func TestRunWithoutChanges(t *testing.T) {
	j := &journal{}
	driver := newMockDriver("main", j)

	r := reflector.New(logging.Discard())
	r.AddTable(usersTable(driver))
	require.NoError(t, r.Run(context.Background()))

	assert.Empty(t, j.entries)
	driver.AssertExpectations(t)
}

func TestRunDropsDeclaredTables(t *testing.T) {
	ctx := context.Background()
	j := &journal{}
	driver := newMockDriver("main", j)
	driver.On("BeginTransaction", ctx, mock.Anything).Return(nil)
	driver.On("CommitTransaction", ctx).Return(nil)

	users := usersTable(driver)
	require.NoError(t, users.DeclareDropped())

	r := reflector.New(logging.Discard())
	r.AddTable(users)
	require.NoError(t, r.Run(ctx))

	assert.Equal(t, "drop users", j.entries[len(j.entries)-2])
	assert.NotContains(t, j.entries, "sync users create-foreign-keys")
	assert.Equal(t, schema.StatusNew, users.Status())
}

func TestRunRollsBackInReverseOrder(t *testing.T) {
	ctx := context.Background()
	j := &journal{}

	first := newMockDriver("first", j)
	first.On("BeginTransaction", ctx, mock.Anything).Return(nil)
	first.On("RollbackTransaction", ctx).Return(nil)

	second := newMockDriver("second", j)
	second.On("BeginTransaction", ctx, mock.Anything).Return(nil)
	second.On("RollbackTransaction", ctx).Return(errors.New("connection reset"))
	second.handler.fail = "logs"

	r := reflector.New(logging.Discard())
	r.AddTable(newTable(t, first, "events"))
	r.AddTable(newTable(t, second, "logs"))

	err := r.Run(ctx)
	require.Error(t, err)
	assert.ErrorContains(t, err, "statement failed")
	assert.ErrorContains(t, err, "failed to rollback transaction: connection reset")

	assert.Equal(t, []string{
		"begin first",
		"begin second",
		"create events",
		"create logs",
		"rollback second",
		"rollback first",
	}, j.entries)
	first.AssertNotCalled(t, "CommitTransaction", mock.Anything)
	second.AssertNotCalled(t, "CommitTransaction", mock.Anything)
}

func TestRunBeginFailure(t *testing.T) {
	ctx := context.Background()
	j := &journal{}

	first := newMockDriver("first", j)
	first.On("BeginTransaction", ctx, mock.Anything).Return(nil)
	first.On("RollbackTransaction", ctx).Return(nil)

	second := newMockDriver("second", j)
	second.On("BeginTransaction", ctx, mock.Anything).Return(errors.New("too many connections"))

	r := reflector.New(logging.Discard())
	r.AddTable(newTable(t, first, "events"))
	r.AddTable(newTable(t, second, "logs"))

	err := r.Run(ctx)
	assert.ErrorContains(t, err, "failed to begin transaction: too many connections")
	assert.Equal(t, []string{"begin first", "begin second", "rollback first"}, j.entries)
	second.AssertNotCalled(t, "RollbackTransaction", mock.Anything)
}

func TestSortedTablesFollowsRenames(t *testing.T) {
	driver := newMockDriver("main", &journal{})

	users := usersTable(driver)
	r := reflector.New(logging.Discard())
	r.AddTable(newTable(t, driver, "posts", "members"))
	r.AddTable(users)
	users.SetName("members")

	assert.Same(t, users, r.Table("members"))
	assert.Nil(t, r.Table("users"))

	sorted, err := r.SortedTables()
	require.NoError(t, err)
	assert.Equal(t, []string{"members", "posts"}, names(sorted))

	// adding the same handle again keeps a single entry
	r.AddTable(users)
	assert.Len(t, r.Tables(), 2)
}

type statementLog struct {
	statements []string
}

func (l *statementLog) Execute(_ context.Context, query string, _ ...any) (int64, error) {
	l.statements = append(l.statements, query)
	return 0, nil
}

func (l *statementLog) HasTable(context.Context, string) (bool, error)         { return true, nil }
func (l *statementLog) TableColumns(context.Context, string) ([]string, error) { return nil, nil }

type ddlDriver struct {
	handler *generator.Handler
}

func (d *ddlDriver) Types() *schema.TypeRegistry                            { return dialect.Postgres().Types() }
func (d *ddlDriver) Handler() schema.Handler                                { return d.handler }
func (d *ddlDriver) BeginTransaction(context.Context, *sql.TxOptions) error { return nil }
func (d *ddlDriver) CommitTransaction(context.Context) error                { return nil }
func (d *ddlDriver) RollbackTransaction(context.Context) error              { return nil }

// A column referenced by a foreign key is replaced: the foreign key is dropped before the
// column and created again once the replacement exists.
func TestRunReplacesReferencedColumn(t *testing.T) {
	log := &statementLog{}
	driver := &ddlDriver{handler: generator.NewHandler(dialect.Postgres(), log, logging.Discard())}
	types := driver.Types()

	a := schema.NewState("a")
	a.RegisterColumn(schema.NewColumn(types, "id").Primary())
	a.RegisterColumn(schema.NewColumn(types, "code").String(16))

	b := schema.NewState("b")
	b.RegisterColumn(schema.NewColumn(types, "id").Primary())
	b.RegisterColumn(schema.NewColumn(types, "a_code").String(16))
	b.RegisterIndex(schema.NewIndex("b_a_code_index", "a_code"))
	b.RegisterForeignKey(schema.NewForeignKey("b_a_fk", "a_code").References("a", "code"))

	tableA := schema.ExistingTable(driver, a)
	require.NoError(t, tableA.DropColumn("code"))
	tableA.Column("code2").String(16)

	tableB := schema.ExistingTable(driver, b)
	require.NoError(t, tableB.RenameColumn("a_code", "a_code2"))
	tableB.State().FindForeignKey([]string{"a_code"}).References("a", "code2")

	r := reflector.New(logging.Discard())
	r.AddTable(tableB)
	r.AddTable(tableA)
	require.NoError(t, r.Run(context.Background()))

	assert.Equal(t, []string{
		`ALTER TABLE "b" DROP CONSTRAINT "b_a_fk"`,
		`DROP INDEX "b_a_code_index"`,
		`ALTER TABLE "a" DROP COLUMN "code"`,
		`ALTER TABLE "a" ADD COLUMN "code2" character varying(16)`,
		`ALTER TABLE "b" RENAME COLUMN "a_code" TO "a_code2"`,
		`CREATE INDEX "b_a_code_index" ON "b" ("a_code2")`,
		`ALTER TABLE "b" ADD CONSTRAINT "b_a_fk" FOREIGN KEY ("a_code2") REFERENCES "a" ("code2") ON DELETE NO ACTION ON UPDATE NO ACTION`,
	}, log.statements)
	assert.False(t, tableA.HasChanges())
	assert.False(t, tableB.HasChanges())
}
