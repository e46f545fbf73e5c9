// Package store defines the persistence interfaces for batches and their
// items. Implementations live under internal/platform (postgres for the
// shared database, memory for local runs and tests). The interfaces keep
// the controller and the dispatcher independent of the storage engine.
package store
