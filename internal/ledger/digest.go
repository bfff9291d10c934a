package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

const (
	entryDigestDomain = "mensajes:entry:v1:"
	logDigestDomain   = "mensajes:log:v1:"
)

func sha256Hex(in []byte) string {
	h := sha256.Sum256(in)
	return hex.EncodeToString(h[:])
}

// EntryDigest is a stable hex digest over the canonical JSON form of one
// entry. The archive stores it so an archived row can be checked against the
// chain without replaying the whole log.
func EntryDigest(e Entry) string {
	canonical, err := json.Marshal(e)
	if err != nil {
		// Entry is a flat struct of scalars; Marshal cannot fail on it.
		return ""
	}
	return sha256Hex(append([]byte(entryDigestDomain), canonical...))
}

// LogDigest chains the entry digests in position order into one fingerprint
// of the whole observed log. Two snapshots with the same digest saw the same
// entries in the same states.
func LogDigest(entries []Entry) string {
	h := sha256.New()
	h.Write([]byte(logDigestDomain))
	for _, e := range entries {
		h.Write([]byte(EntryDigest(e)))
	}
	return hex.EncodeToString(h.Sum(nil))
}
