package util

import (
	"bytes"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"io"
)

// Algorithms lists the checksum algorithms a HashWriter computes, in the
// order manifests are written.
var Algorithms = []string{"md5", "sha256"}

// A HashWriter wraps an io.Writer and also calculates the MD5 and SHA256
// hashes of the bytes written. The zero value is not usable.
type HashWriter struct {
	io.Writer // our io.MultiWriter
	sums      map[string]hash.Hash
	n         int64
}

// NewHashWriter returns a HashWriter wrapping w. If w is nil the bytes are
// only hashed.
func NewHashWriter(w io.Writer) *HashWriter {
	hw := &HashWriter{
		sums: map[string]hash.Hash{
			"md5":    md5.New(),
			"sha256": sha256.New(),
		},
	}
	writers := []io.Writer{hw.sums["md5"], hw.sums["sha256"], counter{&hw.n}}
	if w != nil {
		writers = append(writers, w)
	}
	hw.Writer = io.MultiWriter(writers...)
	return hw
}

// Size is the number of bytes written so far.
func (hw *HashWriter) Size() int64 {
	return hw.n
}

// Sum returns the current checksum for the named algorithm, or nil if the
// algorithm is not one of Algorithms.
func (hw *HashWriter) Sum(algorithm string) []byte {
	h, ok := hw.sums[algorithm]
	if !ok {
		return nil
	}
	return h.Sum(nil)
}

// Check compares the checksum for algorithm against goal. An empty goal
// always matches. The computed sum is returned either way.
func (hw *HashWriter) Check(algorithm string, goal []byte) ([]byte, bool) {
	computed := hw.Sum(algorithm)
	return computed, len(goal) == 0 || bytes.Equal(goal, computed)
}

// VerifyStream checksums r and compares it against the hex encoded goals,
// keyed by algorithm name. Unknown algorithms are ignored. The reader is
// not closed.
func VerifyStream(r io.Reader, goals map[string]string) (bool, error) {
	hw := NewHashWriter(nil)
	if _, err := io.Copy(hw, r); err != nil {
		return false, err
	}
	for alg, goal := range goals {
		if _, known := hw.sums[alg]; !known {
			continue
		}
		want, err := hex.DecodeString(goal)
		if err != nil || len(want) == 0 {
			return false, nil
		}
		if _, ok := hw.Check(alg, want); !ok {
			return false, nil
		}
	}
	return true, nil
}

type counter struct{ n *int64 }

func (c counter) Write(p []byte) (int, error) {
	*c.n += int64(len(p))
	return len(p), nil
}
