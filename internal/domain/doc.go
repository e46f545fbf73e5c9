// Package domain contains the core entities of the annotation workflow:
// batches of audio segments, the per-segment items that carry both the
// automated analysis result and the human answers, and the analysis
// configuration that drives the model call. It also holds the completion
// predicate that decides when a batch is finished.
package domain
