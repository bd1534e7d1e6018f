package handlers

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	stripe "github.com/stripe/stripe-go/v76"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"backend/internal/models"
	"backend/internal/payments"
)

/* =========================
   FAKES
========================= */

type fakeProvider struct {
	intents    map[string]*payments.Intent
	lastCreate *payments.CreateIntentParams
}

func (p *fakeProvider) CreateIntent(_ context.Context, params payments.CreateIntentParams) (*payments.Intent, error) {
	p.lastCreate = &params
	return &payments.Intent{
		ID:           "pi_new",
		ClientSecret: "pi_new_secret_abc",
		Status:       "requires_payment_method",
		Amount:       params.Amount,
		Currency:     params.Currency,
		Metadata:     params.Metadata,
	}, nil
}

func (p *fakeProvider) RetrieveIntent(_ context.Context, id string) (*payments.Intent, error) {
	intent, ok := p.intents[id]
	if !ok {
		return nil, errors.New("no such payment_intent")
	}
	return intent, nil
}

type fakeCatalog struct {
	products map[primitive.ObjectID]*models.Product
}

func (c *fakeCatalog) FindActive(_ context.Context, id primitive.ObjectID) (*models.Product, error) {
	product, ok := c.products[id]
	if !ok {
		return nil, nil
	}
	copied := *product
	return &copied, nil
}

func runHandler(handler gin.HandlerFunc, req *http.Request, userID *primitive.ObjectID) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = req
	if userID != nil {
		c.Set("userId", *userID)
		c.Set("role", "user")
	}
	handler(c)
	return w
}

func jsonRequest(method, target string, body []byte) *http.Request {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

/* =========================
   CREATE PAYMENT INTENT
========================= */

func TestCreatePaymentIntentPricesFromCatalog(t *testing.T) {
	productID := primitive.NewObjectID()
	catalog := &fakeCatalog{products: map[primitive.ObjectID]*models.Product{
		productID: {
			ID:            productID,
			Name:          "Linen Shirt",
			Price:         4000,
			StockQuantity: 5,
			Images:        []string{"/public/uploads/shirt.jpg"},
		},
	}}
	provider := &fakeProvider{}
	userID := primitive.NewObjectID()

	// The client lies about the price; the server must ignore it.
	body := fmt.Sprintf(`{
		"cartItems": [{"id": %q, "quantity": 2, "price": 1}],
		"shippingAddress": {
			"fullName": "Asha Rao", "phone": "9999999999", "street": "12 MG Road",
			"city": "Bengaluru", "state": "Karnataka", "postalCode": "560001", "country": "India"
		}
	}`, productID.Hex())

	w := runHandler(
		createPaymentIntentWith(catalog, provider, testPricing),
		jsonRequest("POST", "/api/payments/process", []byte(body)),
		&userID,
	)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if provider.lastCreate == nil {
		t.Fatal("expected an intent to be created")
	}
	if provider.lastCreate.Amount != 850000 {
		t.Fatalf("expected amount 850000 minor units, got %d", provider.lastCreate.Amount)
	}
	if got := provider.lastCreate.Metadata[payments.MetadataTotalPrice]; got != "8500" {
		t.Fatalf("expected total_price metadata 8500, got %q", got)
	}
	if got := provider.lastCreate.Metadata[payments.MetadataUserID]; got != userID.Hex() {
		t.Fatalf("expected user_id metadata %s, got %q", userID.Hex(), got)
	}

	var items []models.OrderItem
	if err := json.Unmarshal([]byte(provider.lastCreate.Metadata[payments.MetadataOrderItems]), &items); err != nil {
		t.Fatalf("order_items metadata did not round-trip: %v", err)
	}
	if len(items) != 1 || items[0].Price != 4000 || items[0].Name != "Linen Shirt" {
		t.Fatalf("expected catalog-priced items, got %+v", items)
	}

	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response decode failed: %v", err)
	}
	if resp["clientSecret"] != "pi_new_secret_abc" {
		t.Fatalf("expected clientSecret in response, got %v", resp)
	}
}

func TestCreatePaymentIntentUsesSalePrice(t *testing.T) {
	productID := primitive.NewObjectID()
	catalog := &fakeCatalog{products: map[primitive.ObjectID]*models.Product{
		productID: {
			ID:            productID,
			Name:          "Wool Scarf",
			Price:         3000,
			SaleEnabled:   true,
			SalePrice:     2500,
			StockQuantity: 3,
		},
	}}
	provider := &fakeProvider{}
	userID := primitive.NewObjectID()

	body := fmt.Sprintf(`{
		"cartItems": [{"id": %q, "quantity": 1}],
		"shippingAddress": {
			"fullName": "Asha Rao", "phone": "9999999999", "street": "12 MG Road",
			"city": "Bengaluru", "state": "Karnataka", "postalCode": "560001", "country": "India"
		}
	}`, productID.Hex())

	w := runHandler(
		createPaymentIntentWith(catalog, provider, testPricing),
		jsonRequest("POST", "/api/payments/process", []byte(body)),
		&userID,
	)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	// 2500 + 500 shipping fee.
	if got := provider.lastCreate.Metadata[payments.MetadataTotalPrice]; got != "3000" {
		t.Fatalf("expected total_price 3000, got %q", got)
	}
}

func TestCreatePaymentIntentEmptyCart(t *testing.T) {
	provider := &fakeProvider{}
	userID := primitive.NewObjectID()

	body := `{
		"cartItems": [],
		"shippingAddress": {
			"fullName": "Asha Rao", "phone": "9999999999", "street": "12 MG Road",
			"city": "Bengaluru", "state": "Karnataka", "postalCode": "560001", "country": "India"
		}
	}`

	w := runHandler(
		createPaymentIntentWith(&fakeCatalog{}, provider, testPricing),
		jsonRequest("POST", "/api/payments/process", []byte(body)),
		&userID,
	)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty cart, got %d", w.Code)
	}
	if provider.lastCreate != nil {
		t.Fatal("no intent may be created for an empty cart")
	}
}

func TestCreatePaymentIntentUnknownProduct(t *testing.T) {
	provider := &fakeProvider{}
	userID := primitive.NewObjectID()

	body := fmt.Sprintf(`{
		"cartItems": [{"id": %q, "quantity": 1}],
		"shippingAddress": {
			"fullName": "Asha Rao", "phone": "9999999999", "street": "12 MG Road",
			"city": "Bengaluru", "state": "Karnataka", "postalCode": "560001", "country": "India"
		}
	}`, primitive.NewObjectID().Hex())

	w := runHandler(
		createPaymentIntentWith(&fakeCatalog{}, provider, testPricing),
		jsonRequest("POST", "/api/payments/process", []byte(body)),
		&userID,
	)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown product, got %d", w.Code)
	}
	if provider.lastCreate != nil {
		t.Fatal("no intent may be created when a product is missing")
	}
}

func TestCreatePaymentIntentInsufficientStock(t *testing.T) {
	productID := primitive.NewObjectID()
	catalog := &fakeCatalog{products: map[primitive.ObjectID]*models.Product{
		productID: {ID: productID, Name: "Linen Shirt", Price: 4000, StockQuantity: 1},
	}}
	provider := &fakeProvider{}
	userID := primitive.NewObjectID()

	body := fmt.Sprintf(`{
		"cartItems": [{"id": %q, "quantity": 2}],
		"shippingAddress": {
			"fullName": "Asha Rao", "phone": "9999999999", "street": "12 MG Road",
			"city": "Bengaluru", "state": "Karnataka", "postalCode": "560001", "country": "India"
		}
	}`, productID.Hex())

	w := runHandler(
		createPaymentIntentWith(catalog, provider, testPricing),
		jsonRequest("POST", "/api/payments/process", []byte(body)),
		&userID,
	)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for insufficient stock, got %d", w.Code)
	}
}

func TestCreatePaymentIntentMissingAddress(t *testing.T) {
	provider := &fakeProvider{}
	userID := primitive.NewObjectID()

	body := fmt.Sprintf(`{"cartItems": [{"id": %q, "quantity": 1}]}`, primitive.NewObjectID().Hex())

	w := runHandler(
		createPaymentIntentWith(&fakeCatalog{}, provider, testPricing),
		jsonRequest("POST", "/api/payments/process", []byte(body)),
		&userID,
	)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing address, got %d", w.Code)
	}
}

/* =========================
   VERIFY PAYMENT (client)
========================= */

func TestVerifyPaymentRejectsNonSucceededIntent(t *testing.T) {
	store := newFakeOrderStore()
	intent := testIntent(t, "pi_pending")
	intent.Status = "requires_payment_method"
	provider := &fakeProvider{intents: map[string]*payments.Intent{"pi_pending": intent}}

	w := runHandler(
		verifyPaymentWith(store, provider),
		jsonRequest("POST", "/api/payments/verify", []byte(`{"paymentIntentId": "pi_pending"}`)),
		nil,
	)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for non-succeeded intent, got %d", w.Code)
	}
	if len(store.orders) != 0 {
		t.Fatal("a non-succeeded intent must never produce an order")
	}
}

func TestVerifyPaymentCreatesThenReturnsSameOrder(t *testing.T) {
	store := newFakeOrderStore()
	provider := &fakeProvider{intents: map[string]*payments.Intent{
		"pi_ok": testIntent(t, "pi_ok"),
	}}
	handler := verifyPaymentWith(store, provider)
	body := []byte(`{"paymentIntentId": "pi_ok"}`)

	first := runHandler(handler, jsonRequest("POST", "/api/payments/verify", body), nil)
	if first.Code != http.StatusOK {
		t.Fatalf("first verify: expected 200, got %d: %s", first.Code, first.Body.String())
	}

	second := runHandler(handler, jsonRequest("POST", "/api/payments/verify", body), nil)
	if second.Code != http.StatusOK {
		t.Fatalf("second verify: expected 200, got %d: %s", second.Code, second.Body.String())
	}

	if store.inserts != 1 || len(store.orders) != 1 {
		t.Fatalf("expected exactly one persisted order, inserts=%d orders=%d", store.inserts, len(store.orders))
	}

	var firstResp, secondResp struct {
		Success bool         `json:"success"`
		Order   models.Order `json:"order"`
	}
	if err := json.Unmarshal(first.Body.Bytes(), &firstResp); err != nil {
		t.Fatalf("first response decode failed: %v", err)
	}
	if err := json.Unmarshal(second.Body.Bytes(), &secondResp); err != nil {
		t.Fatalf("second response decode failed: %v", err)
	}
	if !firstResp.Success || !secondResp.Success {
		t.Fatal("expected success on both calls")
	}
	if firstResp.Order.ID != secondResp.Order.ID {
		t.Fatalf("expected both calls to return the same order, got %s and %s",
			firstResp.Order.ID.Hex(), secondResp.Order.ID.Hex())
	}
}

func TestVerifyPaymentMalformedMetadataIs400(t *testing.T) {
	store := newFakeOrderStore()
	intent := testIntent(t, "pi_bad_meta")
	intent.Metadata[payments.MetadataOrderItems] = "{broken"
	provider := &fakeProvider{intents: map[string]*payments.Intent{"pi_bad_meta": intent}}

	w := runHandler(
		verifyPaymentWith(store, provider),
		jsonRequest("POST", "/api/payments/verify", []byte(`{"paymentIntentId": "pi_bad_meta"}`)),
		nil,
	)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed metadata, got %d", w.Code)
	}
	if len(store.orders) != 0 {
		t.Fatal("malformed metadata must not produce an order")
	}
}

/* =========================
   STRIPE WEBHOOK
========================= */

const testWebhookSecret = "whsec_test_secret"

func signWebhookPayload(payload []byte, secret string, at time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", at.Unix(), payload)
	return fmt.Sprintf("t=%d,v1=%s", at.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func webhookEventPayload(t *testing.T, eventType string, intent *payments.Intent) []byte {
	t.Helper()

	pi := map[string]interface{}{
		"id":       intent.ID,
		"object":   "payment_intent",
		"status":   intent.Status,
		"amount":   intent.Amount,
		"currency": intent.Currency,
		"metadata": intent.Metadata,
	}
	piJSON, err := json.Marshal(pi)
	if err != nil {
		t.Fatalf("marshal payment intent: %v", err)
	}

	payload := fmt.Sprintf(
		`{"id":"evt_test_1","object":"event","api_version":%q,"type":%q,"data":{"object":%s}}`,
		stripe.APIVersion, eventType, piJSON,
	)
	return []byte(payload)
}

func webhookRequest(payload []byte, signature string) *http.Request {
	req := httptest.NewRequest("POST", "/api/orders/webhook", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Stripe-Signature", signature)
	return req
}

func TestStripeWebhookRejectsInvalidSignature(t *testing.T) {
	store := newFakeOrderStore()
	payload := webhookEventPayload(t, "payment_intent.succeeded", testIntent(t, "pi_forged"))

	w := runHandler(
		stripeWebhookWith(store, testWebhookSecret),
		webhookRequest(payload, signWebhookPayload(payload, "whsec_wrong_secret", time.Now())),
		nil,
	)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid signature, got %d", w.Code)
	}
	if len(store.orders) != 0 {
		t.Fatal("an unsigned webhook must never produce an order")
	}
}

func TestStripeWebhookRejectsMissingSignature(t *testing.T) {
	store := newFakeOrderStore()
	payload := webhookEventPayload(t, "payment_intent.succeeded", testIntent(t, "pi_nosig"))

	w := runHandler(stripeWebhookWith(store, testWebhookSecret), webhookRequest(payload, ""), nil)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing signature, got %d", w.Code)
	}
	if len(store.orders) != 0 {
		t.Fatal("an unsigned webhook must never produce an order")
	}
}

func TestStripeWebhookCreatesOrder(t *testing.T) {
	store := newFakeOrderStore()
	payload := webhookEventPayload(t, "payment_intent.succeeded", testIntent(t, "pi_webhook"))

	w := runHandler(
		stripeWebhookWith(store, testWebhookSecret),
		webhookRequest(payload, signWebhookPayload(payload, testWebhookSecret, time.Now())),
		nil,
	)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	order, ok := store.orders["pi_webhook"]
	if !ok {
		t.Fatal("expected the webhook to create an order")
	}
	if order.OrderStatus != models.OrderStatusProcessing || order.PaymentStatus != models.PaymentStatusSuccessful {
		t.Fatalf("unexpected order state: %+v", order)
	}
}

func TestStripeWebhookIsIdempotent(t *testing.T) {
	store := newFakeOrderStore()
	payload := webhookEventPayload(t, "payment_intent.succeeded", testIntent(t, "pi_redelivered"))
	handler := stripeWebhookWith(store, testWebhookSecret)

	for i := 0; i < 2; i++ {
		w := runHandler(handler, webhookRequest(payload, signWebhookPayload(payload, testWebhookSecret, time.Now())), nil)
		if w.Code != http.StatusOK {
			t.Fatalf("delivery %d: expected 200, got %d", i+1, w.Code)
		}
	}

	if store.inserts != 1 || len(store.orders) != 1 {
		t.Fatalf("redelivery must not duplicate the order, inserts=%d orders=%d", store.inserts, len(store.orders))
	}
}

func TestStripeWebhookAcksMalformedMetadata(t *testing.T) {
	store := newFakeOrderStore()
	intent := testIntent(t, "pi_wh_bad_meta")
	intent.Metadata[payments.MetadataOrderItems] = "{broken"
	payload := webhookEventPayload(t, "payment_intent.succeeded", intent)

	w := runHandler(
		stripeWebhookWith(store, testWebhookSecret),
		webhookRequest(payload, signWebhookPayload(payload, testWebhookSecret, time.Now())),
		nil,
	)

	// Acked so the processor does not retry a payload that cannot heal.
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 ack despite bad metadata, got %d", w.Code)
	}
	if len(store.orders) != 0 {
		t.Fatal("malformed metadata must not produce an order")
	}
}

func TestStripeWebhookIgnoresOtherEventTypes(t *testing.T) {
	store := newFakeOrderStore()
	payload := webhookEventPayload(t, "payment_intent.payment_failed", testIntent(t, "pi_failed"))

	w := runHandler(
		stripeWebhookWith(store, testWebhookSecret),
		webhookRequest(payload, signWebhookPayload(payload, testWebhookSecret, time.Now())),
		nil,
	)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 ack, got %d", w.Code)
	}
	if len(store.orders) != 0 {
		t.Fatal("a failed payment event must not produce an order")
	}
}
