// Package contenthash implements the Dropbox content hash.
//
// The input is split into 4 MiB blocks, each block is hashed with SHA-256,
// and the concatenation of the block digests is hashed with SHA-256 again.
// The hex encoding of the final digest is what the Dropbox API reports as
// content_hash on file metadata.
//
// Reference: https://www.dropbox.com/developers/reference/content-hash
package contenthash

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
)

const (
	// Size is the length, in bytes, of a content hash digest.
	Size = sha256.Size

	// BlockSize is the Dropbox block size the input is chunked into.
	BlockSize = 4 * 1024 * 1024
)

// digest accumulates one SHA-256 per completed block plus the running
// hash of the block being filled.
type digest struct {
	blockSums []byte
	block     hash.Hash
	blockLen  int
}

// New returns a new hash.Hash computing the Dropbox content hash.
func New() hash.Hash {
	return &digest{block: sha256.New()}
}

// Write absorbs more data into the running hash.
// It always returns len(p), nil.
func (d *digest) Write(p []byte) (int, error) {
	n := len(p)

	for len(p) > 0 {
		room := BlockSize - d.blockLen
		take := min(room, len(p))

		d.block.Write(p[:take])
		d.blockLen += take
		p = p[take:]

		if d.blockLen == BlockSize {
			d.blockSums = d.block.Sum(d.blockSums)
			d.block.Reset()
			d.blockLen = 0
		}
	}

	return n, nil
}

// Sum appends the current hash to b and returns the resulting slice.
// It does not change the underlying hash state.
func (d *digest) Sum(b []byte) []byte {
	sums := d.blockSums
	if d.blockLen > 0 {
		sums = d.block.Sum(append([]byte(nil), d.blockSums...))
	}

	final := sha256.Sum256(sums)

	return append(b, final[:]...)
}

// Reset resets the hash to its initial state.
func (d *digest) Reset() {
	d.blockSums = d.blockSums[:0]
	d.block.Reset()
	d.blockLen = 0
}

// Size returns the number of bytes Sum will return.
func (d *digest) Size() int {
	return Size
}

// BlockSize returns the hash's underlying block size.
func (d *digest) BlockSize() int {
	return BlockSize
}

// Sum returns the hex-encoded content hash of data.
func Sum(data []byte) string {
	h := New()
	h.Write(data)

	return hex.EncodeToString(h.Sum(nil))
}

// Compile-time interface check.
var _ hash.Hash = (*digest)(nil)
