package handlers

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"backend/internal/models"
)

type createProductRequest struct {
	Name          string   `json:"name" binding:"required"`
	Description   string   `json:"description"`
	Price         *float64 `json:"price" binding:"required"`
	SaleEnabled   bool     `json:"saleEnabled"`
	SalePrice     float64  `json:"salePrice"`
	Category      string   `json:"category" binding:"required"`
	StockQuantity *int     `json:"stockQuantity" binding:"required"`
	IsFeatured    bool     `json:"isFeatured"`
	Images        []string `json:"images"`
}

type updateProductRequest struct {
	Name          *string   `json:"name"`
	Description   *string   `json:"description"`
	Price         *float64  `json:"price"`
	SaleEnabled   *bool     `json:"saleEnabled"`
	SalePrice     *float64  `json:"salePrice"`
	Category      *string   `json:"category"`
	StockQuantity *int      `json:"stockQuantity"`
	IsFeatured    *bool     `json:"isFeatured"`
	Images        *[]string `json:"images"`
}

func CreateProduct(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /api/products"
		defer handlePanic(c, route)

		var req createProductRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}

		if *req.Price < 0 {
			respondWithError(c, http.StatusBadRequest, route, "price must be greater than or equal to 0")
			return
		}
		if *req.StockQuantity < 0 {
			respondWithError(c, http.StatusBadRequest, route, "stockQuantity must be greater than or equal to 0")
			return
		}
		if err := validateSaleFields(*req.Price, req.SaleEnabled, req.SalePrice, req.SalePrice > 0); err != nil {
			respondWithError(c, http.StatusBadRequest, route, err.Error())
			return
		}

		now := time.Now()
		product := models.Product{
			Name:          strings.TrimSpace(req.Name),
			Description:   strings.TrimSpace(req.Description),
			Price:         *req.Price,
			SaleEnabled:   req.SaleEnabled,
			SalePrice:     req.SalePrice,
			Category:      strings.TrimSpace(req.Category),
			StockQuantity: *req.StockQuantity,
			IsFeatured:    req.IsFeatured,
			Images:        req.Images,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if product.Images == nil {
			product.Images = []string{}
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		res, err := db.Collection("products").InsertOne(ctx, product)
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}
		if id, ok := res.InsertedID.(primitive.ObjectID); ok {
			product.ID = id
		}

		decorateProduct(&product)
		log.Printf("[%s] product created: %s", route, product.ID.Hex())
		c.JSON(http.StatusCreated, product)
	}
}

func UpdateProduct(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "PUT /api/products/:id"
		defer handlePanic(c, route)

		productID, err := primitive.ObjectIDFromHex(c.Param("id"))
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, "invalid product id")
			return
		}

		var req updateProductRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}
		if req.Name == nil && req.Description == nil && req.Price == nil &&
			req.SaleEnabled == nil && req.SalePrice == nil && req.Category == nil &&
			req.StockQuantity == nil && req.IsFeatured == nil && req.Images == nil {
			respondWithError(c, http.StatusBadRequest, route, "nothing to update")
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		var existing models.Product
		err = db.Collection("products").FindOne(ctx, bson.M{"_id": productID}).Decode(&existing)
		if err == mongo.ErrNoDocuments {
			c.JSON(http.StatusNotFound, gin.H{"error": "product not found"})
			return
		}
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}

		// Sale fields are validated against the resulting state, not just
		// the incoming fields.
		price := existing.Price
		if req.Price != nil {
			price = *req.Price
		}
		saleEnabled := existing.SaleEnabled
		if req.SaleEnabled != nil {
			saleEnabled = *req.SaleEnabled
		}
		salePrice := existing.SalePrice
		salePriceSet := existing.SalePrice > 0
		if req.SalePrice != nil {
			salePrice = *req.SalePrice
			salePriceSet = true
		}
		if err := validateSaleFields(price, saleEnabled, salePrice, salePriceSet); err != nil {
			respondWithError(c, http.StatusBadRequest, route, err.Error())
			return
		}

		updateFields := bson.M{"updatedAt": time.Now()}
		if req.Name != nil {
			updateFields["name"] = strings.TrimSpace(*req.Name)
		}
		if req.Description != nil {
			updateFields["description"] = strings.TrimSpace(*req.Description)
		}
		if req.Price != nil {
			updateFields["price"] = *req.Price
		}
		if req.SaleEnabled != nil {
			updateFields["saleEnabled"] = *req.SaleEnabled
			if !*req.SaleEnabled {
				updateFields["salePrice"] = 0.0
			}
		}
		if req.SalePrice != nil {
			updateFields["salePrice"] = *req.SalePrice
		}
		if req.Category != nil {
			updateFields["category"] = strings.TrimSpace(*req.Category)
		}
		if req.StockQuantity != nil {
			updateFields["stockQuantity"] = *req.StockQuantity
		}
		if req.IsFeatured != nil {
			updateFields["isFeatured"] = *req.IsFeatured
		}
		if req.Images != nil {
			updateFields["images"] = *req.Images
		}

		var updated models.Product
		err = db.Collection("products").FindOneAndUpdate(
			ctx,
			bson.M{"_id": productID},
			bson.M{"$set": updateFields},
			options.FindOneAndUpdate().SetReturnDocument(options.After),
		).Decode(&updated)
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}

		decorateProduct(&updated)
		c.JSON(http.StatusOK, updated)
	}
}

// DeleteProduct is a soft delete: the document keeps its order history but
// disappears from catalog queries.
func DeleteProduct(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "DELETE /api/products/:id"
		defer handlePanic(c, route)

		productID, err := primitive.ObjectIDFromHex(c.Param("id"))
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, "invalid product id")
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		var product models.Product
		err = db.Collection("products").FindOne(ctx, bson.M{"_id": productID}).Decode(&product)
		if err == mongo.ErrNoDocuments {
			c.JSON(http.StatusNotFound, gin.H{"error": "product not found"})
			return
		}
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}
		if product.DeletedAt != nil {
			respondWithError(c, http.StatusBadRequest, route, "product already deleted")
			return
		}

		now := time.Now()
		_, err = db.Collection("products").UpdateByID(ctx, productID, bson.M{
			"$set": bson.M{"deletedAt": now, "updatedAt": now},
		})
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}

		log.Printf("[%s] product soft-deleted: %s", route, productID.Hex())
		c.JSON(http.StatusOK, gin.H{"message": "product deleted successfully"})
	}
}
