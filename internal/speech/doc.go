// Package speech turns narration text into cached audio artifacts through a
// text-to-speech backend, guarding every paid synthesis call with the
// artifact cache and a persistent character budget.
package speech
