package ingestion

import (
	"encoding/json"
	"fmt"

	"SynthLedger/internal/fixedpoint"
)

// PriceResolution is a resolved oracle price delivered over NATS.
// Field names use snake_case to match the upstream oracle publisher;
// the price is a raw 1e18 integer string.
type PriceResolution struct {
	Identifier string
	Timestamp  int64
	Price      fixedpoint.Unsigned
}

type priceResolutionJSON struct {
	Identifier string `json:"identifier"`
	Timestamp  int64  `json:"timestamp"`
	Price      string `json:"price"`
}

// ParsePriceResolution validates and converts a raw NATS message.
func ParsePriceResolution(data []byte) (*PriceResolution, error) {
	var j priceResolutionJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse PriceResolution: %w", err)
	}
	if j.Identifier == "" {
		return nil, fmt.Errorf("parse PriceResolution: missing identifier")
	}
	if j.Timestamp <= 0 {
		return nil, fmt.Errorf("parse PriceResolution: invalid timestamp %d", j.Timestamp)
	}
	price, err := fixedpoint.ParseRaw(j.Price)
	if err != nil {
		return nil, fmt.Errorf("parse PriceResolution price: %w", err)
	}
	return &PriceResolution{
		Identifier: j.Identifier,
		Timestamp:  j.Timestamp,
		Price:      price,
	}, nil
}
