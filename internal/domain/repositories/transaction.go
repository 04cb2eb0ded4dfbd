package repositories

import "context"

// TxFn runs inside a transaction; returning an error rolls it back.
type TxFn func(ctx context.Context) error

// TransactionManager runs multi-repository writes atomically. The worker
// uses it to commit a job's completion together with the page-budget
// settlement, so a crash between the two cannot leave them out of step.
type TransactionManager interface {
	ExecTx(ctx context.Context, fn TxFn) error
}
