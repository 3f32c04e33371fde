package schema

import (
	"errors"
	"fmt"
)

// ErrSchema matches every SchemaError with errors.Is.
var ErrSchema = errors.New("schema error")

// SchemaError reports an invalid declaration, e.g. an index over a column that does not exist.
type SchemaError struct {
	Table   string
	Message string
}

func (e *SchemaError) Error() string {
	if e.Table == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (table '%s')", e.Message, e.Table)
}

func (e *SchemaError) Is(target error) bool {
	return target == ErrSchema
}

func schemaErrorf(table, format string, args ...any) error {
	return &SchemaError{Table: table, Message: fmt.Sprintf(format, args...)}
}

// HandlerError wraps a failure of the schema handler while applying a statement.
type HandlerError struct {
	Table     string
	Statement string
	Err       error
}

// NewHandlerError wraps err with the table and the statement that failed.
func NewHandlerError(table, statement string, err error) *HandlerError {
	return &HandlerError{Table: table, Statement: statement, Err: err}
}

func (e *HandlerError) Error() string {
	if e.Statement == "" {
		return fmt.Sprintf("failed to sync table %s: %v", e.Table, e.Err)
	}
	return fmt.Sprintf("failed to sync table %s: %v\n%s", e.Table, e.Err, e.Statement)
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}
