// Package logger provides structured logging for EntMesh.
package logger

import "context"

// contextKey is a type for context keys to avoid collisions.
type contextKey string

const (
	// loggerKey is the context key for the logger.
	loggerKey contextKey = "entmesh.logger"
	// transactionIDKey is the context key for the transaction ID.
	transactionIDKey contextKey = "entmesh.transaction_id"
)

// WithLogger adds a logger to the context.
func WithLogger(ctx context.Context, l Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// FromContext extracts the logger from context.
// Returns the default logger if none is set.
func FromContext(ctx context.Context) Logger {
	if l, ok := ctx.Value(loggerKey).(Logger); ok {
		return l
	}
	return Default()
}

// WithTransactionID adds a transaction ID to the context.
func WithTransactionID(ctx context.Context, txid uint64) context.Context {
	return context.WithValue(ctx, transactionIDKey, txid)
}

// TransactionIDFromContext extracts the transaction ID from context.
func TransactionIDFromContext(ctx context.Context) (uint64, bool) {
	id, ok := ctx.Value(transactionIDKey).(uint64)
	return id, ok
}

// L is a shorthand for FromContext that also enriches the logger with
// the transaction ID from the context.
func L(ctx context.Context) Logger {
	l := FromContext(ctx)
	if txid, ok := TransactionIDFromContext(ctx); ok {
		l = l.With("transaction_id", txid)
	}
	return l
}
