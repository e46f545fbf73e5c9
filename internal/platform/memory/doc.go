// Package memory provides in-process implementations of the store
// interfaces. They back the "memory" database driver and the service tests,
// and honor the same guarantees as the postgres stores: one in-progress
// batch, atomic multi-item inserts and status writes that always set the
// dependent result and error fields together.
package memory
