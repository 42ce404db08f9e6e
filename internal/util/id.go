package util

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strconv"
	"strings"
)

func NewID(prefix string) string {
	bytes := make([]byte, 16)
	_, _ = rand.Read(bytes)
	if prefix == "" {
		return hex.EncodeToString(bytes)
	}
	return prefix + "_" + hex.EncodeToString(bytes)
}

// deterministicIDLength is the number of hex characters kept from the digest.
const deterministicIDLength = 16

// DeterministicID derives a stable id from the owning dossier, the item text
// and its position in the batch. Repeated runs over the same input yield the
// same id.
func DeterministicID(prefix, dossierID, text string, index int) string {
	h := sha256.New()
	h.Write([]byte(dossierID))
	h.Write([]byte{0})
	h.Write([]byte(strings.TrimSpace(text)))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(index)))
	sum := hex.EncodeToString(h.Sum(nil))[:deterministicIDLength]
	if prefix == "" {
		return sum
	}
	return prefix + "_" + sum
}

// CanonicalURL lowercases scheme and host, drops the fragment, default ports
// and a trailing slash so that trivially different spellings of the same
// reference collapse to one value.
func CanonicalURL(raw string) string {
	trimmed := strings.TrimSpace(raw)
	parsed, err := url.Parse(trimmed)
	if err != nil || parsed.Host == "" {
		return strings.ToLower(trimmed)
	}
	parsed.Scheme = strings.ToLower(parsed.Scheme)
	host := strings.ToLower(parsed.Host)
	host = strings.TrimSuffix(host, ":80")
	host = strings.TrimSuffix(host, ":443")
	parsed.Host = strings.TrimPrefix(host, "www.")
	parsed.Fragment = ""
	parsed.RawFragment = ""
	if parsed.Path != "/" {
		parsed.Path = strings.TrimSuffix(parsed.Path, "/")
	} else {
		parsed.Path = ""
	}
	parsed.RawPath = ""
	return parsed.String()
}

// CanonicalURLHash is the uniqueness key for sources within a dossier.
func CanonicalURLHash(raw string) string {
	sum := sha256.Sum256([]byte(CanonicalURL(raw)))
	return hex.EncodeToString(sum[:])
}
