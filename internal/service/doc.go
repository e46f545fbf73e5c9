// Package service implements the batch lifecycle: creating a batch and its
// items, resuming and retrying analysis, recording human answers and
// completing the batch once every item is finished.
//
// The service is the only writer of batch status. Item analysis fields are
// written by the task dispatcher; human answer fields by RecordAnswer.
package service
