// Package aggregates declares the write contracts of the document version core:
// versioning, the processing artifact registry, composites, provenance and family purge.
//
// Implementations live in internal/data/aggregates and own their transaction boundaries,
// or join the caller's transaction when one is supplied through dbctx.Context.
package aggregates
