package service

import (
	"strings"
	"time"

	"github.com/AronBks/blockchain-mensajes-dapp/internal/ledger"
)

// Stats is the dashboard projection over the current snapshot: entry counts
// scoped to the bound identity plus a couple of whole-log activity figures.
type Stats struct {
	Account             string  `json:"account,omitempty"`
	Total               int     `json:"total"`
	Confirmed           int     `json:"confirmed"`
	Pending             int     `json:"pending"`
	MeanSecondsBetween  float64 `json:"mean_seconds_between,omitempty"`
	NewestAgeSeconds    int64   `json:"newest_age_seconds,omitempty"`
	SnapshotLen         int     `json:"snapshot_len"`
	SnapshotDigest      string  `json:"snapshot_digest,omitempty"`
	FetchFailures       uint64  `json:"fetch_failures"`
	SnapshotFetchedUnix int64   `json:"snapshot_fetched_unix,omitempty"`
}

// ComputeStats derives Stats for one identity. Counts cover only entries
// sent by that identity (address compare is case-insensitive, matching the
// original dashboard); the activity figures cover the whole log.
func ComputeStats(snap ledger.Snapshot, account string, now time.Time) Stats {
	st := Stats{SnapshotLen: len(snap.Entries)}
	if account != "" {
		st.Account = AbbreviateAccount(account)
	}
	for _, e := range snap.Entries {
		if account == "" || !strings.EqualFold(e.Sender, account) {
			continue
		}
		st.Total++
		if e.State == ledger.StateConfirmed {
			st.Confirmed++
		} else {
			st.Pending++
		}
	}
	if n := len(snap.Entries); n > 1 {
		first := snap.Entries[0].Timestamp
		last := snap.Entries[n-1].Timestamp
		if last > first {
			st.MeanSecondsBetween = float64(last-first) / float64(n-1)
		}
	}
	if n := len(snap.Entries); n > 0 {
		newest := snap.Entries[n-1].Timestamp
		if age := now.Unix() - newest; age > 0 {
			st.NewestAgeSeconds = age
		}
	}
	if !snap.FetchedAt.IsZero() {
		st.SnapshotFetchedUnix = snap.FetchedAt.Unix()
	}
	if len(snap.Entries) > 0 {
		st.SnapshotDigest = ledger.LogDigest(snap.Entries)
	}
	return st
}
