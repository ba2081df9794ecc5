package store

import (
	"context"
	"net/http"

	"github.com/beejcap/lsp-auth/pkg/errx"
)

// Key addresses a record by composite partition/sort key.
type Key struct {
	PK string `json:"pk"`
	SK string `json:"sk"`
}

// Attributes holds the denormalized fields of one record. Values are kept as
// strings; timestamps are epoch milliseconds.
type Attributes map[string]string

// Record is a stored item.
type Record struct {
	Key  Key
	Attr Attributes
}

// OpKind discriminates transactional write operations.
type OpKind string

const (
	OpPut    OpKind = "put"
	OpUpdate OpKind = "update"
	OpDelete OpKind = "delete"
)

// WriteOp is one operation inside a TransactWrite. Put replaces the record's
// attributes wholesale, Update merges Set and removes Remove, Delete removes
// the record.
type WriteOp struct {
	Kind   OpKind
	Key    Key
	Set    Attributes
	Remove []string
}

// UpdateOptions controls ConditionalUpdate behavior.
type UpdateOptions struct {
	// RequireExists makes the update fail with ErrConditionFailed when the
	// record does not already exist, instead of upserting.
	RequireExists bool
}

// UpdateOption mutates UpdateOptions.
type UpdateOption func(*UpdateOptions)

// WithRequireExists requires the target record to exist.
func WithRequireExists() UpdateOption {
	return func(o *UpdateOptions) { o.RequireExists = true }
}

// Store is the narrow transactional key-value contract every backend must
// satisfy: a document database, an embedded store or a relational table
// emulating the same key scheme.
type Store interface {
	// Get returns the record for key, or (nil, nil) when absent.
	Get(ctx context.Context, key Key) (*Record, error)

	// ConditionalUpdate merges set into the record and removes the named
	// attributes, creating the record unless RequireExists is set.
	ConditionalUpdate(ctx context.Context, key Key, set Attributes, remove []string, opts ...UpdateOption) error

	// Delete removes the record. Deleting an absent record is not an error.
	Delete(ctx context.Context, key Key) error

	// TransactWrite applies all operations atomically. Partial application
	// must never be observable.
	TransactWrite(ctx context.Context, ops []WriteOp) error

	// Query returns all records under pk whose sort key begins with skPrefix.
	Query(ctx context.Context, pk, skPrefix string) ([]Record, error)
}

// ============================================================================
// Error Registry
// ============================================================================

var ErrRegistry = errx.NewRegistry("STORE")

var (
	CodeConditionFailed = ErrRegistry.Register("CONDITION_FAILED", errx.TypeConflict, http.StatusConflict, "Store condition failed")
	CodeTransactFailed  = ErrRegistry.Register("TRANSACT_FAILED", errx.TypeInternal, http.StatusInternalServerError, "Transactional write failed")
	CodeUnavailable     = ErrRegistry.Register("UNAVAILABLE", errx.TypeExternal, http.StatusBadGateway, "Record store unavailable")
)

func ErrConditionFailed() *errx.Error { return ErrRegistry.New(CodeConditionFailed) }
func ErrTransactFailed() *errx.Error  { return ErrRegistry.New(CodeTransactFailed) }
func ErrUnavailable() *errx.Error     { return ErrRegistry.New(CodeUnavailable) }
