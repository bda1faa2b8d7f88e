// Package rowscope implements scoped subtype access over shared storage
// tables: a base entity owns a physical table, and any number of subtypes
// share that table while seeing (and producing) only the rows matching
// their row-filter predicate.
//
// Definitions are registered once at startup through a Registry and are
// immutable afterwards, so they can be shared by concurrent callers
// without synchronization. Query execution is delegated to a Backend
// implementation (see the postgres and memory packages); this package
// only composes queries and never performs I/O of its own.
package rowscope
