// Command slidecast renders narrated videos from manifests of media and
// narration pairs, reusing cached artifacts across runs.
package main
