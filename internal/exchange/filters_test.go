package exchange

import "testing"

func TestSymbolFilterValidate(t *testing.T) {
	filter := SymbolFilter{
		MinQty:      0.001,
		StepSize:    0.001,
		TickSize:    0.01,
		MinNotional: 10,
	}

	tests := []struct {
		name    string
		req     OrderRequest
		wantErr bool
	}{
		{"valid", OrderRequest{Symbol: "BTCUSDT", Side: "buy", Quantity: 0.01, Price: 50000}, false},
		{"zero quantity", OrderRequest{Quantity: 0, Price: 50000}, true},
		{"below min qty", OrderRequest{Quantity: 0.0005, Price: 50000}, true},
		{"off step", OrderRequest{Quantity: 0.0015, Price: 50000}, true},
		{"off tick", OrderRequest{Quantity: 0.01, Price: 50000.005}, true},
		{"below notional", OrderRequest{Quantity: 0.001, Price: 100}, true},
		{"market order uses ref price", OrderRequest{Quantity: 0.01, Price: 0}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := filter.Validate(tt.req, 50000)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate(%+v) error = %v, wantErr %v", tt.req, err, tt.wantErr)
			}
		})
	}
}

func TestSymbolFilterRounding(t *testing.T) {
	filter := SymbolFilter{StepSize: 0.001, TickSize: 0.01}

	if got := filter.RoundQty(0.123456); got != 0.123 {
		t.Fatalf("RoundQty = %f, want 0.123", got)
	}
	if got := filter.RoundPrice(99.999); got != 99.99 {
		t.Fatalf("RoundPrice = %f, want 99.99", got)
	}
	// Rounded values always pass the step checks afterwards.
	req := OrderRequest{Quantity: filter.RoundQty(0.123456), Price: filter.RoundPrice(99.999)}
	if err := (SymbolFilter{StepSize: 0.001, TickSize: 0.01}).Validate(req, 0); err != nil {
		t.Fatalf("rounded order should validate: %v", err)
	}
}
