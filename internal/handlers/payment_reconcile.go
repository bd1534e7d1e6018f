package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"backend/internal/models"
	"backend/internal/payments"
)

/* =========================
   ORDER STORE
========================= */

// orderStore is the narrow persistence surface the reconcile step needs.
// FindByPaymentIntent returns (nil, nil) when no order exists.
type orderStore interface {
	FindByPaymentIntent(ctx context.Context, paymentIntentID string) (*models.Order, error)
	Insert(ctx context.Context, order *models.Order) (primitive.ObjectID, error)
}

type mongoOrderStore struct {
	db *mongo.Database
}

func newMongoOrderStore(db *mongo.Database) *mongoOrderStore {
	return &mongoOrderStore{db: db}
}

func (s *mongoOrderStore) FindByPaymentIntent(ctx context.Context, paymentIntentID string) (*models.Order, error) {
	var order models.Order
	err := s.db.Collection("orders").FindOne(ctx, bson.M{"paymentIntentId": paymentIntentID}).Decode(&order)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (s *mongoOrderStore) Insert(ctx context.Context, order *models.Order) (primitive.ObjectID, error) {
	res, err := s.db.Collection("orders").InsertOne(ctx, order)
	if err != nil {
		return primitive.NilObjectID, err
	}
	id, _ := res.InsertedID.(primitive.ObjectID)
	return id, nil
}

/* =========================
   METADATA
========================= */

// metadataError marks a payload problem in the intent metadata. The client
// verify path maps it to 400; the webhook path logs it and still acks.
type metadataError struct {
	msg string
}

func (e metadataError) Error() string {
	return e.msg
}

func isMetadataError(err error) bool {
	var me metadataError
	return errors.As(err, &me)
}

// orderFromIntent rebuilds the order payload embedded in the intent metadata
// at checkout time.
func orderFromIntent(intent *payments.Intent) (*models.Order, error) {
	userIDValue := strings.TrimSpace(intent.Metadata[payments.MetadataUserID])
	userID, err := primitive.ObjectIDFromHex(userIDValue)
	if err != nil {
		return nil, metadataError{msg: "invalid user id in payment metadata"}
	}

	var items []models.OrderItem
	if err := json.Unmarshal([]byte(intent.Metadata[payments.MetadataOrderItems]), &items); err != nil {
		return nil, metadataError{msg: "invalid order items in payment metadata"}
	}
	if len(items) == 0 {
		return nil, metadataError{msg: "order items cannot be empty"}
	}
	for _, item := range items {
		if item.Quantity < 1 {
			return nil, metadataError{msg: "order item quantity must be at least 1"}
		}
		if item.ProductID.IsZero() || strings.TrimSpace(item.Name) == "" {
			return nil, metadataError{msg: "order item is missing product details"}
		}
	}

	var address models.ShippingAddress
	if err := json.Unmarshal([]byte(intent.Metadata[payments.MetadataShippingAddress]), &address); err != nil {
		return nil, metadataError{msg: "invalid shipping address in payment metadata"}
	}
	if err := validateShippingAddress(address); err != nil {
		return nil, err
	}

	totalPrice, err := strconv.ParseFloat(strings.TrimSpace(intent.Metadata[payments.MetadataTotalPrice]), 64)
	if err != nil || math.IsNaN(totalPrice) || totalPrice < 0 {
		return nil, metadataError{msg: "invalid total price in payment metadata"}
	}

	now := time.Now()
	return &models.Order{
		UserID:          userID,
		Items:           items,
		ShippingAddress: address,
		PaymentStatus:   models.PaymentStatusSuccessful,
		OrderStatus:     models.OrderStatusProcessing,
		TotalPrice:      totalPrice,
		PaymentIntentID: intent.ID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

func validateShippingAddress(address models.ShippingAddress) error {
	fields := map[string]string{
		"fullName":   address.FullName,
		"phone":      address.Phone,
		"street":     address.Street,
		"city":       address.City,
		"state":      address.State,
		"postalCode": address.PostalCode,
		"country":    address.Country,
	}
	for name, value := range fields {
		if strings.TrimSpace(value) == "" {
			return metadataError{msg: "shipping address " + name + " is required"}
		}
	}
	return nil
}

/* =========================
   RECONCILE
========================= */

// reconcileOrder is the shared core of both verification paths: look up the
// order for the intent, create it exactly once if absent. The unique
// paymentIntentId index is the backstop for concurrent verifications: a
// duplicate-key error on insert means another call won, so the order is
// re-read, never re-inserted.
func reconcileOrder(ctx context.Context, store orderStore, intent *payments.Intent) (*models.Order, bool, error) {
	existing, err := store.FindByPaymentIntent(ctx, intent.ID)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	order, err := orderFromIntent(intent)
	if err != nil {
		return nil, false, err
	}

	id, err := store.Insert(ctx, order)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			winner, findErr := store.FindByPaymentIntent(ctx, intent.ID)
			if findErr != nil {
				return nil, false, findErr
			}
			if winner != nil {
				return winner, false, nil
			}
		}
		return nil, false, err
	}

	order.ID = id
	return order, true, nil
}
