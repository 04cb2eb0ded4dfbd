package memory

import (
	"context"

	"github.com/jmobrien1/document-markdown-converter/internal/domain/repositories"
)

// TxManager satisfies repositories.TransactionManager for the in-memory
// repositories, which have no transaction support; the function just
// runs directly.
type TxManager struct{}

// NewTxManager creates a pass-through transaction manager.
func NewTxManager() *TxManager { return &TxManager{} }

func (TxManager) ExecTx(ctx context.Context, fn repositories.TxFn) error {
	return fn(ctx)
}
