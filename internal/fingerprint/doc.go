// Package fingerprint computes the deterministic, kind-scoped keys that
// identify every cached artifact.
//
// A fingerprint is a pure function of its normalized inputs: callers pass
// payload fields through the Normalize* helpers, and New frames each field
// with a length prefix before hashing so field boundaries are unambiguous.
// Two logically identical requests (reordered options, differing surrounding
// whitespace, irrelevant options) therefore always produce the same key, and
// the key never depends on process state or map iteration order.
package fingerprint
