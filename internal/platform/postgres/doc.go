// Package postgres implements the store interfaces on PostgreSQL through
// database/sql and the pgx stdlib driver. The schema lives in the embedded
// goose migrations; the one-in-progress-batch rule is a partial unique
// index and the item status invariant is a CHECK constraint.
package postgres
