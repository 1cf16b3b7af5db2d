package models

import (
	"time"
)

type OptionGreeksDTO struct {
	Delta  float64 `json:"delta"`
	Gamma  float64 `json:"gamma"`
	Theta  float64 `json:"theta"`
	Vega   float64 `json:"vega"`
	Rho    float64 `json:"rho"`
	BidIV  float64 `json:"bid_iv"`
	MidIV  float64 `json:"mid_iv"`
	AskIV  float64 `json:"ask_iv"`
	SmvVol float64 `json:"smv_vol"`
}

type OptionChainTickDTO struct {
	Symbol         string           `json:"symbol"`
	Description    string           `json:"description"`
	Bid            float64          `json:"bid"`
	Ask            float64          `json:"ask"`
	Last           float64          `json:"last"`
	Volume         int64            `json:"volume"`
	OpenInterest   int64            `json:"open_interest"`
	Strike         float64          `json:"strike"`
	ContractSize   int              `json:"contract_size"`
	OptionType     string           `json:"option_type"`
	ExpirationType string           `json:"expiration_type"`
	Greeks         *OptionGreeksDTO `json:"greeks,omitempty"`
}

// DerivePremium picks the most trustworthy premium on the tick: last trade
// first, then the bid/ask midpoint when both sides are quoted, then
// whichever single side is nonzero. Zero means no usable premium.
func (d *OptionChainTickDTO) DerivePremium() float64 {
	if d.Last > 0 {
		return d.Last
	}

	if d.Bid > 0 && d.Ask > 0 {
		return (d.Bid + d.Ask) / 2
	}

	if d.Bid > 0 {
		return d.Bid
	}

	if d.Ask > 0 {
		return d.Ask
	}

	return 0
}

// ImpliedVol returns the provider's mid IV, or nil when the provider sent
// no greeks block or an unusable value.
func (d *OptionChainTickDTO) ImpliedVol() *float64 {
	if d.Greeks == nil || d.Greeks.MidIV <= 0 {
		return nil
	}

	iv := d.Greeks.MidIV

	return &iv
}

// OptionChainDTO is one expiration's worth of chain data, already split by
// option type.
type OptionChainDTO struct {
	Underlying StockSymbol
	Expiration time.Time
	Calls      []OptionChainTickDTO
	Puts       []OptionChainTickDTO
}

func (c *OptionChainDTO) Size() int {
	return len(c.Calls) + len(c.Puts)
}
