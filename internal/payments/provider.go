package payments

import "context"

// Metadata keys carried on a payment intent. The intent metadata is the only
// channel that moves the order payload from checkout to verification; the
// processor stores it opaquely.
const (
	MetadataUserID          = "user_id"
	MetadataOrderItems      = "order_items"
	MetadataShippingAddress = "shipping_address"
	MetadataTotalPrice      = "total_price"
)

// IntentStatusSucceeded is the only status that allows order creation.
const IntentStatusSucceeded = "succeeded"

// Intent is the provider-neutral view of a payment intent.
type Intent struct {
	ID           string
	ClientSecret string
	Status       string
	Amount       int64
	Currency     string
	Metadata     map[string]string
}

// CreateIntentParams describes a new intent. Amount is in the currency's
// minor unit.
type CreateIntentParams struct {
	Amount   int64
	Currency string
	Metadata map[string]string
}

// Provider abstracts the external payment processor so handlers receive an
// injected client instead of reaching for a process-wide singleton.
type Provider interface {
	CreateIntent(ctx context.Context, params CreateIntentParams) (*Intent, error)
	RetrieveIntent(ctx context.Context, id string) (*Intent, error)
}
