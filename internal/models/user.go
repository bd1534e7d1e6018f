package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Role values for User.Role.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// UserAddress is the default shipping address kept on the profile. It is a
// convenience for checkout prefill; the address on an order is its own copy.
type UserAddress struct {
	FullName   string `bson:"fullName,omitempty" json:"fullName,omitempty"`
	Phone      string `bson:"phone,omitempty" json:"phone,omitempty"`
	Street     string `bson:"street,omitempty" json:"street,omitempty"`
	City       string `bson:"city,omitempty" json:"city,omitempty"`
	State      string `bson:"state,omitempty" json:"state,omitempty"`
	PostalCode string `bson:"postalCode,omitempty" json:"postalCode,omitempty"`
	Country    string `bson:"country,omitempty" json:"country,omitempty"`
}

type User struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name         string             `bson:"name" json:"name"`
	Email        string             `bson:"email" json:"email"`
	PasswordHash string             `bson:"passwordHash" json:"-"`
	Role         string             `bson:"role" json:"role"`
	Address      UserAddress        `bson:"address,omitempty" json:"address"`
	CreatedAt    time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt    time.Time          `bson:"updatedAt" json:"updatedAt"`
}
