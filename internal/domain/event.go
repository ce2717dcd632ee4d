package domain

// Swap side constants. Upstream parsers only emit these two values;
// zero/uncertain amounts are never emitted (parser contract).
const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// SwapEvent represents one normalized swap row produced by the upstream
// swap parser. Corresponds to swap_event table.
type SwapEvent struct {
	TimestampMs int64   // Unix timestamp in milliseconds
	TxSignature string  // Solana transaction signature
	Slot        int64   // Solana slot number
	EventIndex  int     // index of event within transaction
	Pool        string  // pool address (AMM ID)
	Token       string  // base token mint address
	Side        string  // "buy" | "sell" (taker side)
	Price       float64 // quote per base
	BaseAmt     float64 // base token amount
	QuoteAmt    float64 // quote (SOL/USDC) notional
	Taker       string  // aggressor wallet address
	Maker       string  // passive side, empty for AMM takes
	Router      string  // routing program, empty if direct

	// TakerStats carries the upstream wallet-profile features for the
	// taker, present on the taker's first swap in this pool. Nil when the
	// profile service has nothing for the wallet.
	TakerStats *WalletStats
}

// Liquidity event kind constants.
const (
	LiquidityAdd    = "add"
	LiquidityRemove = "remove"
	LiquidityUpdate = "update"
)

// LiquidityEvent represents a pool reserve change.
// Corresponds to lp_event table.
type LiquidityEvent struct {
	TimestampMs int64
	Slot        int64
	Pool        string
	XReserve    float64 // base reserve after the event
	YReserve    float64 // quote reserve after the event
	FeeBps      int     // pool fee in basis points
	Kind        string  // "add" | "remove" | "update"

	// TopHolderLPShare is the share of LP supply held by the top-10
	// holders, when the upstream resolver could compute it. Negative
	// means unknown.
	TopHolderLPShare float64
}

// AuthorityEvent represents a mint/pool authority change.
// Corresponds to authority_event table.
type AuthorityEvent struct {
	TimestampMs int64
	Slot        int64
	Mint        string
	Pool        string
	FeeSwitch   bool
	TaxFlag     bool
	MintAuth    bool // mint authority still present
	FreezeAuth  bool // freeze authority still present
}

// Event is the union of normalized event kinds the aggregator folds.
// Events for one pool arrive in non-decreasing slot order.
type Event interface {
	EventPool() string
	EventSlot() int64
	EventTimeMs() int64
}

func (e *SwapEvent) EventPool() string { return e.Pool }
func (e *SwapEvent) EventSlot() int64 { return e.Slot }
func (e *SwapEvent) EventTimeMs() int64 { return e.TimestampMs }

func (e *LiquidityEvent) EventPool() string { return e.Pool }
func (e *LiquidityEvent) EventSlot() int64 { return e.Slot }
func (e *LiquidityEvent) EventTimeMs() int64 { return e.TimestampMs }

func (e *AuthorityEvent) EventPool() string { return e.Pool }
func (e *AuthorityEvent) EventSlot() int64 { return e.Slot }
func (e *AuthorityEvent) EventTimeMs() int64 { return e.TimestampMs }
