package media

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// ContentHasher produces a stable content-address for a byte stream.
// It is consumed both when probing source files and when describing
// generated thumbnails, so the same implementation must serve both.
type ContentHasher interface {
	HashFile(path string) (string, error)
	HashReader(reader io.Reader) (string, error)
}

// MD5Hasher hashes the full content of the stream with MD5 and
// returns the digest hex-encoded.
type MD5Hasher struct{}

func (MD5Hasher) HashFile(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s for hashing: %w", path, err)
	}
	defer file.Close()

	return MD5Hasher{}.HashReader(file)
}

func (MD5Hasher) HashReader(reader io.Reader) (string, error) {
	digest := md5.New()
	if _, err := io.Copy(digest, reader); err != nil {
		return "", fmt.Errorf("failed to hash content: %w", err)
	}

	return hex.EncodeToString(digest.Sum(nil)), nil
}
