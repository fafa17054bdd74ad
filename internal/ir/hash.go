package ir

import (
	"crypto/sha256"
	"encoding/hex"

	"golang.org/x/text/unicode/norm"
)

// Domain prefixes for content hashes. The version suffix allows the
// algorithm to change without colliding with old hashes.
const (
	DomainGeneratedCode = "autovnc/generated/v1"
)

// hashWithDomain computes SHA-256 with domain separation.
// Format: SHA256(domain + 0x00 + data)
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// GeneratedCodeHash hashes the generated region of a script.
// The text is NFC normalized first so that visually identical output from
// different editors hashes the same.
func GeneratedCodeHash(generated string) string {
	return hashWithDomain(DomainGeneratedCode, []byte(norm.NFC.String(generated)))
}
