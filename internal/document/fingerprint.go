package document

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"io"
)

// ContentDigest returns the hex SHA-256 of the raw document bytes. Computed
// once per document and combined per page by PageFingerprint.
func ContentDigest(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// PageFingerprint derives the cache identity for one page's OCR output. It
// hashes the content digest, the page index, and the engine identity string,
// so a change to any input that could alter recognition output yields a new
// fingerprint.
func PageFingerprint(contentDigest string, page int, engine string) string {
	h := sha256.New()
	io.WriteString(h, contentDigest)
	var idx [8]byte
	binary.BigEndian.PutUint64(idx[:], uint64(page))
	h.Write(idx[:])
	io.WriteString(h, engine)
	return hex.EncodeToString(h.Sum(nil))
}
