package hashing

import (
	"crypto/sha256"
	"encoding/hex"
)

// CalculateSHA256 returns the lower-case hex digest of data.
func CalculateSHA256(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

func CalculateSHA256FromStr(text string) string {
	return CalculateSHA256([]byte(text))
}

// ContentHash is the digest stored on agreements and proofs for the document bytes.
func ContentHash(document []byte) string {
	return CalculateSHA256(document)
}

// IsContentHash reports whether hash looks like a hex SHA-256 digest.
func IsContentHash(hash string) bool {
	if len(hash) != sha256.Size*2 {
		return false
	}
	_, err := hex.DecodeString(hash)
	return err == nil
}
