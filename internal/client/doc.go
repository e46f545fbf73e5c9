// Package client talks to the annotation API over HTTP and keeps a local
// view of one batch in sync with it.
//
// A Session holds the batch's items as two independently merged records:
// the analysis state, which the server owns, and the human answers, which
// the client owns until they have been saved. A Poller refreshes the
// Session every two seconds until every analysis is settled or the batch
// is completed, and restarts after a retry.
package client
