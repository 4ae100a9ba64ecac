package ingestion_test

import (
	"encoding/json"
	"testing"

	"SynthLedger/internal/fixedpoint"
	"SynthLedger/internal/ingestion"
)

func marshal(t *testing.T, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}

func TestParsePriceResolution(t *testing.T) {
	data := marshal(t, map[string]interface{}{
		"identifier": "ETHUSD",
		"timestamp":  int64(1_700_000_000),
		"price":      "1200000000000000000",
	})

	pr, err := ingestion.ParsePriceResolution(data)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if pr.Identifier != "ETHUSD" {
		t.Errorf("identifier: got %s, want ETHUSD", pr.Identifier)
	}
	if pr.Timestamp != 1_700_000_000 {
		t.Errorf("timestamp: got %d, want 1700000000", pr.Timestamp)
	}
	if !pr.Price.Equal(fixedpoint.MustParse("1.2")) {
		t.Errorf("price: got %s, want 1.2", pr.Price)
	}
}

func TestParsePriceResolution_MissingIdentifier(t *testing.T) {
	data := marshal(t, map[string]interface{}{
		"timestamp": int64(1_700_000_000),
		"price":     "1200000000000000000",
	})
	if _, err := ingestion.ParsePriceResolution(data); err == nil {
		t.Error("missing identifier should fail")
	}
}

func TestParsePriceResolution_BadTimestamp(t *testing.T) {
	for _, ts := range []int64{0, -5} {
		data := marshal(t, map[string]interface{}{
			"identifier": "ETHUSD",
			"timestamp":  ts,
			"price":      "1200000000000000000",
		})
		if _, err := ingestion.ParsePriceResolution(data); err == nil {
			t.Errorf("timestamp %d should fail", ts)
		}
	}
}

func TestParsePriceResolution_MalformedPrice(t *testing.T) {
	cases := []string{"", "1.2", "-5", "abc"}
	for _, price := range cases {
		data := marshal(t, map[string]interface{}{
			"identifier": "ETHUSD",
			"timestamp":  int64(1_700_000_000),
			"price":      price,
		})
		if _, err := ingestion.ParsePriceResolution(data); err == nil {
			t.Errorf("price %q should fail", price)
		}
	}
}

func TestParsePriceResolution_InvalidJSON(t *testing.T) {
	if _, err := ingestion.ParsePriceResolution([]byte("{not json")); err == nil {
		t.Error("malformed JSON should fail")
	}
}
