package extpkg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChecksumRoundTripAllAlgorithms(t *testing.T) {
	data := []byte("extension.wasm payload bytes")

	for _, algo := range []Algorithm{AlgoSHA256, AlgoSHA384, AlgoSHA512, AlgoBLAKE3} {
		t.Run(string(algo), func(t *testing.T) {
			ref, err := NewFileReference("extension.wasm", algo, data)
			require.NoError(t, err)

			assert.True(t, ref.Verify(data))

			flipped := append([]byte(nil), data...)
			flipped[0] ^= 0x01
			assert.False(t, ref.Verify(flipped))
		})
	}
}

func TestFileReferenceChecksumIsCanonicalForm(t *testing.T) {
	ref, err := NewFileReference("x.bin", AlgoBLAKE3, []byte("hello"))
	require.NoError(t, err)
	assert.Regexp(t, "^blake3:[0-9a-f]+$", ref.Checksum)
}

func TestVerifyRejectsUnsupportedAlgorithm(t *testing.T) {
	ref := FileReference{Path: "x", Checksum: "md5:deadbeef", Size: 5}
	assert.False(t, ref.Verify([]byte("hello")))
}

func TestVerifyRejectsSizeMismatch(t *testing.T) {
	ref, err := NewFileReference("x.bin", AlgoSHA256, []byte("hello"))
	require.NoError(t, err)
	assert.False(t, ref.Verify([]byte("hello world")))
}
