package ledger

import "time"

// State mirrors the estado field of the RegistroMensajes contract.
type State int

const (
	StatePending   State = 0
	StateConfirmed State = 1
)

// Label returns the human label used in exports and the original UI.
func (s State) Label() string {
	if s == StateConfirmed {
		return "Confirmado"
	}
	return "Pendiente"
}

// Entry is one observed message in the on-chain log. Position is the dense,
// 0-based index assigned in contract insertion order; it is carried through
// every derived view instead of being recomputed from display order.
type Entry struct {
	Position  int64  `json:"id"`
	Sender    string `json:"remitente"`
	Content   string `json:"contenido"`
	FileCID   string `json:"archivo_cid,omitempty"`
	State     State  `json:"estado"`
	Timestamp int64  `json:"timestamp"`
}

// Time converts the contract's unix-seconds timestamp.
func (e Entry) Time() time.Time {
	return time.Unix(e.Timestamp, 0)
}

// Snapshot is the full ordered log as last observed from the ledger. It is
// replaced wholesale on every successful fetch, never mutated in place.
type Snapshot struct {
	Entries   []Entry   `json:"entries"`
	FetchedAt time.Time `json:"fetched_at"`
}

// At returns the entry at the given position, if present. Positions are dense
// and 0-based, so this is an index lookup guarded against the snapshot bounds.
func (s Snapshot) At(position int64) (Entry, bool) {
	if position < 0 || position >= int64(len(s.Entries)) {
		return Entry{}, false
	}
	return s.Entries[position], true
}

// TxResult reports the outcome of a state-changing gateway call.
type TxResult struct {
	TxHash      string `json:"tx_hash"`
	BlockNumber int64  `json:"block_number,omitempty"`
}
