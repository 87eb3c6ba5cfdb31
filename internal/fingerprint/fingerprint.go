package fingerprint

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"io"
	"os"
)

// Kind scopes a fingerprint to one artifact namespace so identical payloads
// in different namespaces never collide.
type Kind string

const (
	KindSilence Kind = "silence"
	KindSpeech  Kind = "speech"
	KindScene   Kind = "scene"
	KindVideo   Kind = "video"
	KindTrack   Kind = "track"
	KindRemote  Kind = "remote"
)

// Key is a 128-bit artifact identifier rendered as 32 hex characters.
type Key string

func (k Key) String() string { return string(k) }

// keyBytes is the truncated digest length; 128 bits is plenty for a cache
// keyed by a few million artifacts.
const keyBytes = 16

// New computes the fingerprint of the given normalized fields under a kind.
// Fields must already be normalized (see Normalize* helpers); New only
// guarantees that the framing is unambiguous: every field is length-prefixed,
// so ["ab","c"] and ["a","bc"] hash differently.
func New(kind Kind, fields ...string) Key {
	hasher := sha256.New()

	var prefix [8]byte
	writeField := func(data []byte) {
		binary.BigEndian.PutUint64(prefix[:], uint64(len(data)))
		hasher.Write(prefix[:])
		hasher.Write(data)
	}

	writeField([]byte(kind))
	binary.BigEndian.PutUint64(prefix[:], uint64(len(fields)))
	hasher.Write(prefix[:])
	for _, field := range fields {
		writeField([]byte(field))
	}

	sum := hasher.Sum(nil)
	return Key(hex.EncodeToString(sum[:keyBytes]))
}

// FileDigest returns the content identity of a local file, in the same 32
// hex character form as New. Used where an artifact's inputs include file
// contents rather than strings, such as a scene's visual.
func FileDigest(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return "", err
	}
	sum := hasher.Sum(nil)
	return hex.EncodeToString(sum[:keyBytes]), nil
}
