package graph

import (
	"encoding/binary"
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// Domain prefixes for content-addressed identity. The version suffix leaves
// room for algorithm migration without colliding with old ids.
const (
	DomainAtom        = "noema/atom/v1"
	DomainComposition = "noema/composition/v1"
	DomainRelation    = "noema/relation/v1"
	DomainContent     = "noema/content/v1"
)

// hashWithDomain computes BLAKE2b-256 over domain || 0x00 || data and
// returns the hex digest. The null separator prevents domain/data boundary
// ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h, _ := blake2b.New256(nil) // only errors on a bad key; we pass none
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// HashAtom returns the content hash of a single code point.
func HashAtom(r rune) string {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(r))
	return hashWithDomain(DomainAtom, buf[:])
}

// HashContent returns the content hash of a raw ingested byte stream.
func HashContent(data []byte) string {
	return hashWithDomain(DomainContent, data)
}

// hashEntries computes the sequence hash under the given domain: the
// canonical encoding is the ordered list of (child-hash, occurrence-count)
// pairs, each as the 64 hex digits of the child hash followed by the count
// as a uvarint. Identical ordered sequences always produce identical
// hashes; distinct sequences collide only if BLAKE2b does.
func hashEntries(domain string, entries []Entry) string {
	var data []byte
	for _, e := range entries {
		data = append(data, e.Child.ID()...)
		data = binary.AppendUvarint(data, uint64(e.Count))
	}
	return hashWithDomain(domain, data)
}

// HashComposition returns the content hash of a composition sequence.
func HashComposition(entries []Entry) string {
	return hashEntries(DomainComposition, entries)
}

// HashRelation returns the content hash of a relation sequence.
func HashRelation(entries []Entry) string {
	return hashEntries(DomainRelation, entries)
}
