package utils

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
)

// HashAlgorithm represents the hashing algorithm to use
type HashAlgorithm string

const (
	MD5    HashAlgorithm = "md5"
	SHA256 HashAlgorithm = "sha256"
)

// Hasher provides content hashing over a configurable algorithm
type Hasher struct {
	algorithm HashAlgorithm
}

// NewHasher creates a new hasher with the specified algorithm
func NewHasher(algorithm HashAlgorithm) *Hasher {
	return &Hasher{
		algorithm: algorithm,
	}
}

func (h *Hasher) newHash() hash.Hash {
	switch h.algorithm {
	case MD5:
		return md5.New()
	default:
		return sha256.New()
	}
}

// HashReader streams r through the hash
func (h *Hasher) HashReader(r io.Reader) (string, error) {
	sum := h.newHash()
	if _, err := io.Copy(sum, r); err != nil {
		return "", fmt.Errorf("failed to hash stream: %w", err)
	}
	return hex.EncodeToString(sum.Sum(nil)), nil
}

// HashFile hashes the content of the file at path
func (h *Hasher) HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return h.HashReader(f)
}
