// Package projection maintains rebuildable read models from the event log.
//
// An Engine applies committed events to registered projections through a Store that
// commits record changes and the per-aggregate checkpoint together. Redelivered events are
// dropped, gaps are filled from the event log, and Rebuild replays the full log into a
// fresh view. A rebuilt projection equals the incrementally maintained one.
//
// Stores: MemoryStore for tests and single-process use, SQLiteStore for durable read models.
package projection
