package service

import (
	"strconv"
	"strings"

	"github.com/AronBks/blockchain-mensajes-dapp/internal/ledger"
)

// Search derives a filtered view over a snapshot. An empty query returns an
// empty result set. A purely numeric query is first tried as an exact
// positional lookup; a hit returns exactly that entry and short-circuits. If
// the position is out of range, or the query is not numeric, the query is
// matched case-insensitively against every entry's content, preserving
// snapshot order.
func Search(snap ledger.Snapshot, query string) []ledger.Entry {
	q := strings.TrimSpace(query)
	if q == "" {
		return nil
	}
	if isAllDigits(q) {
		if pos, err := strconv.ParseInt(q, 10, 64); err == nil {
			if entry, ok := snap.At(pos); ok {
				return []ledger.Entry{entry}
			}
		}
	}
	needle := strings.ToLower(q)
	var out []ledger.Entry
	for _, entry := range snap.Entries {
		if strings.Contains(strings.ToLower(entry.Content), needle) {
			out = append(out, entry)
		}
	}
	return out
}

func isAllDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
