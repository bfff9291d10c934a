package service

import (
	"fmt"
	"io"
	"strings"

	"github.com/AronBks/blockchain-mensajes-dapp/internal/ledger"
)

// ExportFilename is the fixed download name of the CSV projection.
const ExportFilename = "historial_mensajes_blockchain.csv"

const exportTimeLayout = "02/01/2006 15:04:05"

// WriteCSV serializes entries as the flat interchange format the original
// tooling consumes: columns ID,Contenido,Estado,Timestamp,Remitente, CRLF
// line separators, content always double-quoted with internal quotes
// doubled, all other fields bare. IDs are 1-based positions. Rows follow
// snapshot order (oldest first) unless reverse is set. An empty slice yields
// a header-only document.
func WriteCSV(w io.Writer, entries []ledger.Entry, reverse bool) error {
	lines := make([]string, 0, len(entries)+1)
	lines = append(lines, "ID,Contenido,Estado,Timestamp,Remitente")
	appendRow := func(e ledger.Entry) {
		ts := ""
		if e.Timestamp != 0 {
			ts = e.Time().Format(exportTimeLayout)
		}
		lines = append(lines, fmt.Sprintf("%d,%s,%s,%s,%s",
			e.Position+1,
			quoteContent(e.Content),
			e.State.Label(),
			ts,
			e.Sender,
		))
	}
	if reverse {
		for i := len(entries) - 1; i >= 0; i-- {
			appendRow(entries[i])
		}
	} else {
		for _, e := range entries {
			appendRow(e)
		}
	}
	_, err := io.WriteString(w, strings.Join(lines, "\r\n"))
	return err
}

func quoteContent(content string) string {
	return `"` + strings.ReplaceAll(content, `"`, `""`) + `"`
}
