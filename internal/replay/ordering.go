package replay

import (
	"sort"

	"solana-coil-detector/internal/ingest"
)

// SortRows orders rows by (slot ASC, tx_signature ASC, event_index ASC,
// type ASC). This is chain order; replaying a recording sorted this way
// reproduces the live fold exactly regardless of how the file was
// written.
func SortRows(rows []ingest.Row) {
	sort.SliceStable(rows, func(i, j int) bool {
		return compareRows(&rows[i], &rows[j]) < 0
	})
}

// compareRows returns negative when a precedes b in chain order. The
// row type breaks ties so rows sharing a composite key still have one
// canonical order ("authority" < "lp" < "swap").
func compareRows(a, b *ingest.Row) int {
	if a.Slot != b.Slot {
		if a.Slot < b.Slot {
			return -1
		}
		return 1
	}
	if a.TxSignature != b.TxSignature {
		if a.TxSignature < b.TxSignature {
			return -1
		}
		return 1
	}
	if a.EventIndex != b.EventIndex {
		if a.EventIndex < b.EventIndex {
			return -1
		}
		return 1
	}
	if a.Type != b.Type {
		if a.Type < b.Type {
			return -1
		}
		return 1
	}
	return 0
}
