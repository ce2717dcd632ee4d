package domain

// GapRecord documents events dropped because they arrived too far out
// of slot order to be reordered. Persisted so CVD discontinuities are
// auditable; corresponds to event_gap table.
type GapRecord struct {
	Pool        string
	FromSlot    int64 // last folded slot at drop time
	ToSlot      int64 // slot of the dropped event
	Dropped     int   // events dropped in this gap
	TimestampMs int64
}
