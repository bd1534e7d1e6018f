package handlers

import "math"

// PricingConfig carries the checkout pricing knobs from config.
type PricingConfig struct {
	Currency              string
	ShippingFee           float64
	FreeShippingThreshold float64
}

// shippingFeeFor applies the flat fee only below the free-shipping threshold.
func shippingFeeFor(subtotal float64, cfg PricingConfig) float64 {
	if subtotal >= cfg.FreeShippingThreshold {
		return 0
	}
	return cfg.ShippingFee
}

func orderTotal(subtotal float64, cfg PricingConfig) float64 {
	return subtotal + shippingFeeFor(subtotal, cfg)
}

// minorUnits converts a currency-unit amount to the processor's minor unit.
func minorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}
