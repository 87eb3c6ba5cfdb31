// Package store is the content-addressed artifact cache shared by every
// pipeline stage.
//
// Artifacts live under namespace directories keyed by fingerprint, written
// once via a staging-then-rename commit so readers never observe partial
// files. Reserve hands out at-most-one-builder reservations per key, held
// in-process with a builder table and across processes with file locks.
// A SQLite index tracks sizes and last-read times for the optional
// least-recently-read eviction pass.
package store
