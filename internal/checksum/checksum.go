package checksum

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
)

// Algorithm represents the hashing algorithm to use
type Algorithm string

const (
	// MD5 matches the checksum Google Drive reports
	MD5 Algorithm = "md5"
	// SHA256 is the default for upload history
	SHA256 Algorithm = "sha256"
)

// IsSupported checks if the given algorithm is supported
func IsSupported(algo Algorithm) bool {
	switch algo {
	case MD5, SHA256:
		return true
	default:
		return false
	}
}

func newHash(algo Algorithm) (hash.Hash, error) {
	switch algo {
	case MD5:
		return md5.New(), nil
	case SHA256:
		return sha256.New(), nil
	default:
		return nil, fmt.Errorf("unsupported algorithm: %s", algo)
	}
}

// Reader hashes everything read through it, so a file is digested while
// it streams to the destination instead of being read twice
type Reader struct {
	reader io.Reader
	hash   hash.Hash
	n      int64
}

// NewReader wraps r
func NewReader(r io.Reader, algo Algorithm) (*Reader, error) {
	h, err := newHash(algo)
	if err != nil {
		return nil, err
	}
	return &Reader{reader: r, hash: h}, nil
}

// Read implements io.Reader
func (r *Reader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	if n > 0 {
		r.hash.Write(p[:n])
		r.n += int64(n)
	}
	return n, err
}

// Sum returns the hex digest of the bytes read so far
func (r *Reader) Sum() string {
	return hex.EncodeToString(r.hash.Sum(nil))
}

// BytesRead returns how many bytes passed through
func (r *Reader) BytesRead() int64 {
	return r.n
}
