package ports

import "context"

// Tx is an opaque transaction handle; infrastructure decides the concrete type.
type Tx interface{}

// UnitOfWork runs fn in one transaction. fn returning an error rolls back.
type UnitOfWork interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type txKey struct{}

func WithTxContext(ctx context.Context, tx Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

func TxFromContext(ctx context.Context) Tx {
	if ctx == nil {
		return nil
	}
	return ctx.Value(txKey{})
}

func InTx(ctx context.Context) bool {
	return TxFromContext(ctx) != nil
}
