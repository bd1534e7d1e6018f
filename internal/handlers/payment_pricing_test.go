package handlers

import "testing"

var testPricing = PricingConfig{
	Currency:              "inr",
	ShippingFee:           500,
	FreeShippingThreshold: 10000,
}

func TestShippingFeeAppliedBelowThreshold(t *testing.T) {
	// The worked checkout example: 2 × 4000 = 8000, below 10000, so the
	// flat 500 fee applies.
	if got := orderTotal(8000, testPricing); got != 8500 {
		t.Fatalf("expected total 8500, got %v", got)
	}
}

func TestShippingFreeAtThreshold(t *testing.T) {
	if got := orderTotal(10000, testPricing); got != 10000 {
		t.Fatalf("expected free shipping at threshold, got %v", got)
	}
	if got := orderTotal(12000, testPricing); got != 12000 {
		t.Fatalf("expected free shipping above threshold, got %v", got)
	}
}

func TestShippingFeeJustBelowThreshold(t *testing.T) {
	if got := orderTotal(9999.99, testPricing); got != 10499.99 {
		t.Fatalf("expected 10499.99, got %v", got)
	}
}

func TestMinorUnits(t *testing.T) {
	tests := []struct {
		amount float64
		want   int64
	}{
		{8500, 850000},
		{0, 0},
		{99.99, 9999},
		{0.1, 10},
	}
	for _, tt := range tests {
		if got := minorUnits(tt.amount); got != tt.want {
			t.Fatalf("minorUnits(%v) = %d, want %d", tt.amount, got, tt.want)
		}
	}
}
