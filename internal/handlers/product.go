package handlers

import (
	"context"
	"log"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"backend/internal/models"
)

// activeProductFilter excludes soft-deleted products.
func activeProductFilter() bson.M {
	return bson.M{"deletedAt": nil}
}

// decorateProduct fills the derived fields that are not stored.
func decorateProduct(p *models.Product) {
	p.IsOnSale = isProductOnSale(p.Price, p.SaleEnabled, p.SalePrice)
	p.InStock = p.StockQuantity > 0
}

/*
GET /api/products
Optional filters: category, minPrice, maxPrice, keyword (name/description
regex). Paginated, defaults page=1 limit=10.
*/
func GetProducts(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/products"
		defer handlePanic(c, route)

		if err := ensureDBConnection(c.Request.Context(), db); err != nil {
			respondWithError(c, http.StatusServiceUnavailable, route, "database unavailable")
			return
		}

		page, limit, err := parsePaginationParams(c.Query("page"), c.Query("limit"))
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, "invalid pagination params")
			return
		}

		filter := activeProductFilter()

		if category := strings.TrimSpace(c.Query("category")); category != "" {
			filter["category"] = category
		}

		priceFilter := bson.M{}
		if minPrice := strings.TrimSpace(c.Query("minPrice")); minPrice != "" {
			parsed, err := strconv.ParseFloat(minPrice, 64)
			if err != nil {
				respondWithError(c, http.StatusBadRequest, route, "invalid minPrice")
				return
			}
			priceFilter["$gte"] = parsed
		}
		if maxPrice := strings.TrimSpace(c.Query("maxPrice")); maxPrice != "" {
			parsed, err := strconv.ParseFloat(maxPrice, 64)
			if err != nil {
				respondWithError(c, http.StatusBadRequest, route, "invalid maxPrice")
				return
			}
			priceFilter["$lte"] = parsed
		}
		if len(priceFilter) > 0 {
			filter["price"] = priceFilter
		}

		if keyword := strings.TrimSpace(c.Query("keyword")); keyword != "" {
			filter["$or"] = []bson.M{
				{"name": bson.M{"$regex": keyword, "$options": "i"}},
				{"description": bson.M{"$regex": keyword, "$options": "i"}},
			}
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		total, err := db.Collection("products").CountDocuments(ctx, filter)
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}

		findOptions := options.Find().
			SetSort(bson.D{{Key: "createdAt", Value: -1}}).
			SetSkip((page - 1) * limit).
			SetLimit(limit)

		cursor, err := db.Collection("products").Find(ctx, filter, findOptions)
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}
		defer cursor.Close(ctx)

		products := []models.Product{}
		if err := cursor.All(ctx, &products); err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "decode error")
			return
		}
		for i := range products {
			decorateProduct(&products[i])
		}

		log.Printf("[%s] returning %d of %d products", route, len(products), total)
		c.JSON(http.StatusOK, gin.H{
			"products":      products,
			"page":          page,
			"totalPages":    int64(math.Ceil(float64(total) / float64(limit))),
			"totalProducts": total,
		})
	}
}

func GetProduct(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/products/:id"
		defer handlePanic(c, route)

		productID, err := primitive.ObjectIDFromHex(c.Param("id"))
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, "invalid product id")
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		filter := activeProductFilter()
		filter["_id"] = productID

		var product models.Product
		err = db.Collection("products").FindOne(ctx, filter).Decode(&product)
		if err == mongo.ErrNoDocuments {
			c.JSON(http.StatusNotFound, gin.H{"error": "no such product found"})
			return
		}
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}

		decorateProduct(&product)
		c.JSON(http.StatusOK, product)
	}
}

func GetFeaturedProducts(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/products/featured"
		defer handlePanic(c, route)

		filter := activeProductFilter()
		filter["isFeatured"] = true

		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		cursor, err := db.Collection("products").Find(ctx, filter, options.Find().SetLimit(10))
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}
		defer cursor.Close(ctx)

		products := []models.Product{}
		if err := cursor.All(ctx, &products); err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "decode error")
			return
		}
		for i := range products {
			decorateProduct(&products[i])
		}

		c.JSON(http.StatusOK, products)
	}
}

// GetCategories returns the distinct category values of live products.
func GetCategories(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/products/categories"
		defer handlePanic(c, route)

		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		values, err := db.Collection("products").Distinct(ctx, "category", activeProductFilter())
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}

		categories := make([]string, 0, len(values))
		for _, value := range values {
			if s, ok := value.(string); ok && s != "" {
				categories = append(categories, s)
			}
		}

		c.JSON(http.StatusOK, categories)
	}
}
