// Package events carries in-process notifications between components that
// must not import each other.
//
// The task dispatcher emits an ItemFinished event whenever an item reaches a
// terminal analysis status; the batch service handles it to re-evaluate the
// batch's auto-completion predicate.
package events
