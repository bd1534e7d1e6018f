package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	stripe "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"backend/internal/models"
	"backend/internal/payments"
)

const maxWebhookBodyBytes = 64 << 10

/* =========================
   REQUEST DTOs
========================= */

type cartItemRequest struct {
	ID       string `json:"id" binding:"required"`
	Quantity int    `json:"quantity" binding:"required,min=1"`
}

type shippingAddressRequest struct {
	FullName   string `json:"fullName" binding:"required"`
	Phone      string `json:"phone" binding:"required"`
	Street     string `json:"street" binding:"required"`
	City       string `json:"city" binding:"required"`
	State      string `json:"state" binding:"required"`
	PostalCode string `json:"postalCode" binding:"required"`
	Country    string `json:"country" binding:"required"`
}

type createPaymentIntentRequest struct {
	CartItems       []cartItemRequest      `json:"cartItems" binding:"required"`
	ShippingAddress shippingAddressRequest `json:"shippingAddress" binding:"required"`
}

type verifyPaymentRequest struct {
	PaymentIntentID string `json:"paymentIntentId" binding:"required"`
}

/* =========================
   PRODUCT CATALOG
========================= */

// productCatalog is the lookup surface for authoritative product data at
// checkout. FindActive returns (nil, nil) when the product does not exist or
// is soft-deleted.
type productCatalog interface {
	FindActive(ctx context.Context, id primitive.ObjectID) (*models.Product, error)
}

type mongoProductCatalog struct {
	db *mongo.Database
}

func (c *mongoProductCatalog) FindActive(ctx context.Context, id primitive.ObjectID) (*models.Product, error) {
	var product models.Product
	err := c.db.Collection("products").FindOne(ctx, bson.M{
		"_id":       id,
		"deletedAt": nil,
	}).Decode(&product)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

/* =========================
   CREATE PAYMENT INTENT
========================= */

// CreatePaymentIntent validates the cart against the live catalog, prices it
// server-side and creates a processor intent whose metadata carries the full
// order payload for the verification step.
func CreatePaymentIntent(db *mongo.Database, provider payments.Provider, pricing PricingConfig) gin.HandlerFunc {
	return createPaymentIntentWith(&mongoProductCatalog{db: db}, provider, pricing)
}

func createPaymentIntentWith(catalog productCatalog, provider payments.Provider, pricing PricingConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /api/payments/process"
		defer handlePanic(c, route)

		var req createPaymentIntentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}
		if len(req.CartItems) == 0 {
			respondWithError(c, http.StatusBadRequest, route, "cart is empty")
			return
		}

		userID, ok := userIDFromContext(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
		defer cancel()

		// Client-supplied prices are ignored; every line item is re-priced
		// from the catalog.
		items := make([]models.OrderItem, 0, len(req.CartItems))
		subtotal := 0.0
		for _, cartItem := range req.CartItems {
			productID, err := primitive.ObjectIDFromHex(cartItem.ID)
			if err != nil {
				respondWithError(c, http.StatusBadRequest, route, "invalid product id")
				return
			}

			product, err := catalog.FindActive(ctx, productID)
			if err != nil {
				respondWithError(c, http.StatusInternalServerError, route, "db error")
				return
			}
			if product == nil {
				log.Printf("[%s] product not found: %s", route, productID.Hex())
				c.JSON(http.StatusNotFound, gin.H{
					"error":     "product not found",
					"productId": productID.Hex(),
				})
				return
			}
			if product.StockQuantity < cartItem.Quantity {
				c.JSON(http.StatusBadRequest, gin.H{
					"error":     "insufficient stock",
					"productId": productID.Hex(),
					"available": product.StockQuantity,
					"requested": cartItem.Quantity,
				})
				return
			}

			unitPrice := effectiveProductPrice(product.Price, product.SaleEnabled, product.SalePrice)
			items = append(items, models.OrderItem{
				ProductID: productID,
				Name:      product.Name,
				Price:     unitPrice,
				Quantity:  cartItem.Quantity,
				Image:     product.FirstImage(),
			})
			subtotal += unitPrice * float64(cartItem.Quantity)
		}

		total := orderTotal(subtotal, pricing)

		itemsJSON, err := json.Marshal(items)
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "could not encode order items")
			return
		}
		addressJSON, err := json.Marshal(models.ShippingAddress(req.ShippingAddress))
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "could not encode shipping address")
			return
		}

		intent, err := provider.CreateIntent(ctx, payments.CreateIntentParams{
			Amount:   minorUnits(total),
			Currency: pricing.Currency,
			Metadata: map[string]string{
				payments.MetadataUserID:          userID.Hex(),
				payments.MetadataOrderItems:      string(itemsJSON),
				payments.MetadataShippingAddress: string(addressJSON),
				payments.MetadataTotalPrice:      strconv.FormatFloat(total, 'f', -1, 64),
			},
		})
		if err != nil {
			log.Printf("[%s] intent creation failed: %v", route, err)
			respondWithError(c, http.StatusInternalServerError, route, "payment intent creation failed")
			return
		}

		log.Printf("[%s] intent %s created for user %s, total %.2f", route, intent.ID, userID.Hex(), total)
		c.JSON(http.StatusOK, gin.H{"clientSecret": intent.ClientSecret})
	}
}

/* =========================
   VERIFY PAYMENT (client)
========================= */

// VerifyPayment is the client-triggered verification path. The intent is
// always re-fetched from the processor; a client-asserted status is never
// trusted.
func VerifyPayment(db *mongo.Database, provider payments.Provider) gin.HandlerFunc {
	return verifyPaymentWith(newMongoOrderStore(db), provider)
}

func verifyPaymentWith(orders orderStore, provider payments.Provider) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /api/payments/verify"
		defer handlePanic(c, route)

		var req verifyPaymentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
		defer cancel()

		intent, err := provider.RetrieveIntent(ctx, req.PaymentIntentID)
		if err != nil {
			log.Printf("[%s] intent lookup failed: %v", route, err)
			respondWithError(c, http.StatusInternalServerError, route, "could not retrieve payment")
			return
		}

		if intent.Status != payments.IntentStatusSucceeded {
			log.Printf("[%s] intent %s not succeeded: %s", route, intent.ID, intent.Status)
			respondWithError(c, http.StatusBadRequest, route, "payment is not completed")
			return
		}

		order, created, err := reconcileOrder(ctx, orders, intent)
		if err != nil {
			if isMetadataError(err) {
				respondWithError(c, http.StatusBadRequest, route, err.Error())
				return
			}
			log.Printf("[%s] reconcile failed: %v", route, err)
			respondWithError(c, http.StatusInternalServerError, route, "order creation failed")
			return
		}

		if created {
			log.Printf("[%s] order %s created from intent %s", route, order.ID.Hex(), intent.ID)
		} else {
			log.Printf("[%s] order %s already exists for intent %s", route, order.ID.Hex(), intent.ID)
		}

		c.JSON(http.StatusOK, gin.H{"success": true, "order": order})
	}
}

/* =========================
   STRIPE WEBHOOK
========================= */

// StripeWebhook is the processor-triggered verification path. The signature
// check is the only condition that produces a non-200: once the payload is
// trusted, failures are logged and acknowledged so the processor does not
// retry forever.
func StripeWebhook(db *mongo.Database, webhookSecret string) gin.HandlerFunc {
	return stripeWebhookWith(newMongoOrderStore(db), webhookSecret)
}

func stripeWebhookWith(orders orderStore, webhookSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /api/orders/webhook"
		defer handlePanic(c, route)

		payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBodyBytes))
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, "could not read body")
			return
		}

		event, err := webhook.ConstructEvent(payload, c.GetHeader("Stripe-Signature"), webhookSecret)
		if err != nil {
			log.Printf("[%s] signature verification failed: %v", route, err)
			respondWithError(c, http.StatusBadRequest, route, "invalid signature")
			return
		}

		if event.Type != "payment_intent.succeeded" {
			c.JSON(http.StatusOK, gin.H{"received": true})
			return
		}

		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			log.Printf("[%s] event payload unmarshal failed: %v", route, err)
			c.JSON(http.StatusOK, gin.H{"received": true})
			return
		}

		intent := &payments.Intent{
			ID:       pi.ID,
			Status:   string(pi.Status),
			Amount:   pi.Amount,
			Currency: string(pi.Currency),
			Metadata: pi.Metadata,
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
		defer cancel()

		order, created, err := reconcileOrder(ctx, orders, intent)
		if err != nil {
			// Acked on purpose: a 4xx/5xx here would make the processor
			// retry a payload that will never become valid.
			log.Printf("[%s] reconcile failed for intent %s: %v", route, intent.ID, err)
			c.JSON(http.StatusOK, gin.H{"received": true})
			return
		}

		if created {
			log.Printf("[%s] order %s created from intent %s", route, order.ID.Hex(), intent.ID)
		} else {
			log.Printf("[%s] order already exists for intent %s", route, intent.ID)
		}

		c.JSON(http.StatusOK, gin.H{"received": true})
	}
}
