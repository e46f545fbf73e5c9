// Package api is the HTTP surface of the annotation service. Handlers decode
// and validate requests, call the batch service or the object store, and map
// errors to status codes with MapErrorToStatusCode. Routes are registered in
// cmd/server.
package api
