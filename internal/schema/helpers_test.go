package schema_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/koba/db-sync/internal/dialect"
	"github.com/koba/db-sync/internal/schema"
)

type handlerCall struct {
	Method string
	Table  string
	Op     schema.Operation
	// State is a copy of the declared state the handler received.
	State *schema.State
	// Initial is a copy of the database state the handler received.
	Initial *schema.State
}

// recordingHandler records every call it receives.
type recordingHandler struct {
	calls []handlerCall
	err   error
}

func (h *recordingHandler) record(method string, t *schema.Table, op schema.Operation) error {
	h.calls = append(h.calls, handlerCall{
		Method:  method,
		Table:   t.Name(),
		Op:      op,
		State:   t.State().Clone(),
		Initial: t.InitialState().Clone(),
	})
	return h.err
}

func (h *recordingHandler) HasTable(context.Context, string) (bool, error) { return false, nil }

func (h *recordingHandler) CreateTable(_ context.Context, t *schema.Table) error {
	return h.record("create", t, schema.DoAll)
}

func (h *recordingHandler) SyncTable(_ context.Context, t *schema.Table, op schema.Operation) error {
	return h.record("sync", t, op)
}

func (h *recordingHandler) DropTable(_ context.Context, t *schema.Table) error {
	return h.record("drop", t, schema.DoDrop)
}

func (h *recordingHandler) EraseTable(_ context.Context, t *schema.Table) error {
	return h.record("erase", t, 0)
}

func (h *recordingHandler) last() handlerCall {
	return h.calls[len(h.calls)-1]
}

type fakeDriver struct {
	types   *schema.TypeRegistry
	handler *recordingHandler
}

func (d *fakeDriver) Types() *schema.TypeRegistry                            { return d.types }
func (d *fakeDriver) Handler() schema.Handler                                { return d.handler }
func (d *fakeDriver) BeginTransaction(context.Context, *sql.TxOptions) error { return nil }
func (d *fakeDriver) CommitTransaction(context.Context) error                { return nil }
func (d *fakeDriver) RollbackTransaction(context.Context) error              { return nil }

func newDriver(t *testing.T, name string) *fakeDriver {
	t.Helper()
	d, err := dialect.Get(name)
	if err != nil {
		t.Fatalf("unknown dialect %s: %v", name, err)
	}
	return &fakeDriver{types: d.Types(), handler: &recordingHandler{}}
}

// usersState is an existing users table with an index and a foreign key.
func usersState(types *schema.TypeRegistry) *schema.State {
	state := schema.NewState("users")
	state.RegisterColumn(schema.NewColumn(types, "id").Primary())
	state.RegisterColumn(schema.NewColumn(types, "email").String(120).SetNullable(false))
	state.RegisterColumn(schema.NewColumn(types, "name").String(64))
	state.RegisterColumn(schema.NewColumn(types, "group_id").Integer())

	state.RegisterIndex(schema.NewIndex("users_email_unique", "email").SetUnique(true))
	state.RegisterIndex(schema.NewIndex("users_name_index", "name"))
	state.RegisterIndex(schema.NewIndex("users_group_index", "group_id"))
	state.RegisterForeignKey(schema.NewForeignKey("users_group_foreign", "group_id").References("groups", "id"))
	return state
}
