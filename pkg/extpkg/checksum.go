package extpkg

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"strings"

	"github.com/zeebo/blake3"
)

// Algorithm identifies a checksum function. BLAKE3 is preferred for new
// content; the SHA family is accepted for interop with external tooling.
type Algorithm string

const (
	AlgoSHA256 Algorithm = "sha256"
	AlgoSHA384 Algorithm = "sha384"
	AlgoSHA512 Algorithm = "sha512"
	AlgoBLAKE3 Algorithm = "blake3"
)

func newHasher(algo Algorithm) (hash.Hash, error) {
	switch algo {
	case AlgoSHA256:
		return sha256.New(), nil
	case AlgoSHA384:
		return sha512.New384(), nil
	case AlgoSHA512:
		return sha512.New(), nil
	case AlgoBLAKE3:
		return blake3.New(), nil
	default:
		return nil, fmt.Errorf("extpkg: unsupported checksum algorithm %q", algo)
	}
}

// FileReference names one file within a package by its manifest-declared
// relative path, canonical "algorithm:hex" checksum, and byte length.
type FileReference struct {
	Path     string `json:"path"`
	Checksum string `json:"checksum"`
	Size     int64  `json:"size"`
}

// NewFileReference computes algo's checksum over data and returns a
// FileReference ready to embed in a manifest.
func NewFileReference(path string, algo Algorithm, data []byte) (FileReference, error) {
	h, err := newHasher(algo)
	if err != nil {
		return FileReference{}, err
	}
	h.Write(data)
	sum := hex.EncodeToString(h.Sum(nil))
	return FileReference{
		Path:     path,
		Checksum: string(algo) + ":" + sum,
		Size:     int64(len(data)),
	}, nil
}

// Algorithm parses the algorithm portion of r's canonical checksum string.
func (r FileReference) Algorithm() (Algorithm, error) {
	algo, _, ok := strings.Cut(r.Checksum, ":")
	if !ok {
		return "", fmt.Errorf("extpkg: malformed checksum %q", r.Checksum)
	}
	return Algorithm(algo), nil
}

// Verify reports whether data hashes, under r's recorded algorithm, to r's
// recorded checksum. A length mismatch short-circuits to false.
func (r FileReference) Verify(data []byte) bool {
	if r.Size != int64(len(data)) {
		return false
	}
	algo, err := r.Algorithm()
	if err != nil {
		return false
	}
	h, err := newHasher(algo)
	if err != nil {
		return false
	}
	h.Write(data)
	sum := hex.EncodeToString(h.Sum(nil))
	return r.Checksum == string(algo)+":"+sum
}
