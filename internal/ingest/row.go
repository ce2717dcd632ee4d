// Package ingest consumes the upstream feed of normalized pool events
// and hands them to the aggregator. The feed carries rows already
// parsed and validated upstream; this package never decodes raw
// transactions.
package ingest

import (
	"fmt"

	"solana-coil-detector/internal/domain"
)

// Row type discriminators on the feed.
const (
	RowSwap      = "swap"
	RowLiquidity = "lp"
	RowAuthority = "authority"
)

// Row is the wire format of one normalized event row.
type Row struct {
	Type        string `json:"type"`
	TimestampMs int64  `json:"ts"`
	Slot        int64  `json:"slot"`
	Pool        string `json:"pool"`

	// Swap fields
	TxSignature string              `json:"sig,omitempty"`
	EventIndex  int                 `json:"event_index,omitempty"`
	Token       string              `json:"token,omitempty"`
	Side        string              `json:"side,omitempty"`
	Price       float64             `json:"price,omitempty"`
	BaseAmt     float64             `json:"base_amt,omitempty"`
	QuoteAmt    float64             `json:"quote_amt,omitempty"`
	Taker       string              `json:"taker,omitempty"`
	Maker       string              `json:"maker,omitempty"`
	Router      string              `json:"router,omitempty"`
	TakerStats  *domain.WalletStats `json:"taker_stats,omitempty"`

	// Liquidity fields
	XReserve   float64  `json:"x_reserve,omitempty"`
	YReserve   float64  `json:"y_reserve,omitempty"`
	FeeBps     int      `json:"fee_bps,omitempty"`
	Kind       string   `json:"kind,omitempty"`
	LPTopShare *float64 `json:"lp_top_share,omitempty"`

	// Authority fields
	Mint       string `json:"mint,omitempty"`
	FeeSwitch  bool   `json:"fee_switch,omitempty"`
	TaxFlag    bool   `json:"tax_flag,omitempty"`
	MintAuth   bool   `json:"mint_auth,omitempty"`
	FreezeAuth bool   `json:"freeze_auth,omitempty"`
}

// Event converts the row into the domain event the aggregator folds.
func (r *Row) Event() (domain.Event, error) {
	if r.Pool == "" {
		return nil, fmt.Errorf("row without pool")
	}

	switch r.Type {
	case RowSwap:
		if r.Side != domain.SideBuy && r.Side != domain.SideSell {
			return nil, fmt.Errorf("swap row with side %q", r.Side)
		}
		return &domain.SwapEvent{
			TimestampMs: r.TimestampMs,
			TxSignature: r.TxSignature,
			Slot:        r.Slot,
			EventIndex:  r.EventIndex,
			Pool:        r.Pool,
			Token:       r.Token,
			Side:        r.Side,
			Price:       r.Price,
			BaseAmt:     r.BaseAmt,
			QuoteAmt:    r.QuoteAmt,
			Taker:       r.Taker,
			Maker:       r.Maker,
			Router:      r.Router,
			TakerStats:  r.TakerStats,
		}, nil

	case RowLiquidity:
		lpShare := -1.0
		if r.LPTopShare != nil {
			lpShare = *r.LPTopShare
		}
		return &domain.LiquidityEvent{
			TimestampMs:      r.TimestampMs,
			Slot:             r.Slot,
			Pool:             r.Pool,
			XReserve:         r.XReserve,
			YReserve:         r.YReserve,
			FeeBps:           r.FeeBps,
			Kind:             r.Kind,
			TopHolderLPShare: lpShare,
		}, nil

	case RowAuthority:
		return &domain.AuthorityEvent{
			TimestampMs: r.TimestampMs,
			Slot:        r.Slot,
			Mint:        r.Mint,
			Pool:        r.Pool,
			FeeSwitch:   r.FeeSwitch,
			TaxFlag:     r.TaxFlag,
			MintAuth:    r.MintAuth,
			FreezeAuth:  r.FreezeAuth,
		}, nil

	default:
		return nil, fmt.Errorf("unknown row type %q", r.Type)
	}
}
