package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type ProductReview struct {
	UserID    primitive.ObjectID `bson:"userId" json:"userId"`
	Rating    int                `bson:"rating" json:"rating"`
	Comment   string             `bson:"comment,omitempty" json:"comment,omitempty"`
	CreatedAt time.Time          `bson:"createdAt" json:"createdAt"`
}

type Product struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name          string             `bson:"name" json:"name"`
	Description   string             `bson:"description,omitempty" json:"description,omitempty"`
	Price         float64            `bson:"price" json:"price"`
	SaleEnabled   bool               `bson:"saleEnabled" json:"saleEnabled"`
	SalePrice     float64            `bson:"salePrice" json:"salePrice"`
	IsOnSale      bool               `bson:"-" json:"isOnSale"`
	Category      string             `bson:"category" json:"category"`
	StockQuantity int                `bson:"stockQuantity" json:"stockQuantity"`
	InStock       bool               `bson:"-" json:"inStock"`
	IsFeatured    bool               `bson:"isFeatured" json:"isFeatured"`
	Images        []string           `bson:"images" json:"images"`
	Reviews       []ProductReview    `bson:"reviews,omitempty" json:"reviews,omitempty"`
	DeletedAt     *time.Time         `bson:"deletedAt,omitempty" json:"deletedAt,omitempty"`
	CreatedAt     time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt     time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// FirstImage returns the image carried into order items, empty when the
// product has none.
func (p Product) FirstImage() string {
	if len(p.Images) == 0 {
		return ""
	}
	return p.Images[0]
}
