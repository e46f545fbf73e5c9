// Package task runs item analysis in the background.
//
// A Gate bounds how many analysis calls run at once. The Dispatcher starts
// one goroutine per item; each waits for a permit, marks the item
// processing, fetches its audio, calls the analyzer and records the result
// or the error message. Dispatch never waits for items to finish and never
// returns per-item errors: the item store is the only record of outcomes.
//
// Items whose goroutine is cut short by Stop stay processing in the store
// and are picked up by the next recovery pass.
package task
