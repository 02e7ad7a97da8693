// Package aggregates implements the write contracts of internal/domain/aggregates.
//
// Implementations compose table-level repos from internal/data/repos and own the
// transaction boundary of each logical operation. A caller that already holds a
// transaction passes it in dbctx.Context and the operation runs in a savepoint of it.
package aggregates
