package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGeneratedCodeHashDeterminism(t *testing.T) {
	code := "def run(vnc):\n    vnc.click(10, 20)"

	h1 := GeneratedCodeHash(code)
	h2 := GeneratedCodeHash(code)

	assert.Equal(t, h1, h2, "GeneratedCodeHash must be deterministic")
	assert.Len(t, h1, 64, "SHA-256 hex is 64 characters")
}

func TestGeneratedCodeHashChangesWithInput(t *testing.T) {
	base := GeneratedCodeHash("vnc.click(10, 20)")

	assert.NotEqual(t, base, GeneratedCodeHash("vnc.click(10, 21)"))
	assert.NotEqual(t, base, GeneratedCodeHash("vnc.click(10, 20)\n"), "trailing newline is significant")
}

func TestHashDomainSeparation(t *testing.T) {
	data := []byte("vnc.click(10, 20)")

	generated := hashWithDomain(DomainGeneratedCode, data)
	other := hashWithDomain("autovnc/other/v1", data)

	assert.NotEqual(t, generated, other, "Different domains must produce different hashes")
	assert.Equal(t, generated, GeneratedCodeHash(string(data)))
}

func TestHashWithDomainNullSeparator(t *testing.T) {
	// "foo" + 0x00 + "bar" != "foob" + 0x00 + "ar"
	hash1 := hashWithDomain("foo", []byte("bar"))
	hash2 := hashWithDomain("foob", []byte("ar"))

	assert.NotEqual(t, hash1, hash2, "Null separator must prevent boundary confusion")
}

func TestHashWithDomainKnownVector(t *testing.T) {
	// sha256("a\x00b")
	assert.Equal(t,
		"59b271ae1bbcb1d31d41929817f4b16fb439eb4f31520b5ad1d5ce98920a7138",
		hashWithDomain("a", []byte("b")))
}
