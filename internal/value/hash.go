package value

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainNaturalKey = "ballotdesk/natural-key/v1"
	DomainQuery      = "ballotdesk/query/v1"
)

// HashWithDomain computes SHA-256 with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte separator prevents domain/data boundary ambiguity.
func HashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Hash computes the domain-separated hash of v's canonical encoding.
func Hash(domain string, v Value) (string, error) {
	canonical, err := MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("hash: %w", err)
	}
	return HashWithDomain(domain, canonical), nil
}

// NaturalKeyID derives a stable document id suffix from a collection name and
// the ordered natural-key values of a document.
//
// The same (collection, key) always yields the same id, across restarts and
// across processes, so re-importing a roster never duplicates a student.
func NaturalKeyID(collection string, key Array) (string, error) {
	obj := Object{
		"collection": String(collection),
		"key":        key,
	}
	h, err := Hash(DomainNaturalKey, obj)
	if err != nil {
		return "", fmt.Errorf("NaturalKeyID: %w", err)
	}
	return h[:16], nil
}
