package main

import (
	"log"
	"os"

	"github.com/gin-gonic/gin"

	"backend/internal/config"
	"backend/internal/database"
	"backend/internal/handlers"
	"backend/internal/middleware"
	"backend/internal/payments"
)

func main() {
	config.Load()

	client, err := database.Connect(config.AppEnv.MongoURI)
	if err != nil {
		log.Fatal(err)
	}

	db := client.Database(config.AppEnv.DBName)

	log.Println("MongoDB connected to:", db.Name())

	if err := database.EnsureUserIndexes(db); err != nil {
		log.Printf("user index warning: %v", err)
	}
	if err := database.EnsureOrderIndexes(db); err != nil {
		// Without the unique paymentIntentId index duplicate webhook
		// deliveries can create duplicate orders.
		log.Fatalf("order indexes are required: %v", err)
	}
	if err := database.EnsureProductIndexes(db); err != nil {
		log.Printf("product index warning: %v", err)
	}

	provider, err := payments.NewStripeProvider(config.AppEnv.StripeSecretKey)
	if err != nil {
		log.Fatal(err)
	}

	pricing := handlers.PricingConfig{
		Currency:              config.AppEnv.Currency,
		ShippingFee:           config.AppEnv.ShippingFee,
		FreeShippingThreshold: config.AppEnv.FreeShippingThreshold,
	}

	var uploadStorage handlers.UploadStorage
	if config.AppEnv.UploadS3Bucket != "" {
		uploadStorage, err = handlers.NewS3UploadStorage(config.AppEnv.UploadS3Bucket, config.AppEnv.UploadS3Region)
		if err != nil {
			log.Fatal(err)
		}
		log.Println("uploads stored in S3 bucket:", config.AppEnv.UploadS3Bucket)
	} else {
		uploadStorage = handlers.NewLocalUploadStorage(config.AppEnv.UploadLocalDir)
		log.Println("uploads stored locally in:", config.AppEnv.UploadLocalDir)
	}

	r := gin.Default()
	r.Static("/public", "./public")

	userAuth := middleware.UserAuth(config.AppEnv.JWTSecret)
	adminOnly := middleware.AdminOnly()

	auth := r.Group("/api/auth")
	{
		auth.POST("/register", handlers.Register(db, config.AppEnv.JWTSecret, config.AppEnv.AccessTokenTTL, config.AppEnv.RefreshTokenTTL))
		auth.POST("/login", handlers.Login(db, config.AppEnv.JWTSecret, config.AppEnv.AccessTokenTTL, config.AppEnv.RefreshTokenTTL))
		auth.POST("/refresh", handlers.Refresh(db, config.AppEnv.JWTSecret, config.AppEnv.AccessTokenTTL, config.AppEnv.RefreshTokenTTL))
		auth.POST("/logout", handlers.Logout(db))
		auth.GET("/me", userAuth, handlers.GetMe(db))
	}

	products := r.Group("/api/products")
	{
		products.GET("", handlers.GetProducts(db))
		products.GET("/featured", handlers.GetFeaturedProducts(db))
		products.GET("/categories", handlers.GetCategories(db))
		products.GET("/:id", handlers.GetProduct(db))

		products.POST("", userAuth, adminOnly, handlers.CreateProduct(db))
		products.PUT("/:id", userAuth, adminOnly, handlers.UpdateProduct(db))
		products.DELETE("/:id", userAuth, adminOnly, handlers.DeleteProduct(db))
	}

	users := r.Group("/api/users")
	{
		users.PUT("/profile", userAuth, handlers.UpdateUserProfile(db))
		users.GET("", userAuth, adminOnly, handlers.GetAllUsers(db))
	}

	paymentsGroup := r.Group("/api/payments")
	paymentsGroup.Use(userAuth)
	{
		paymentsGroup.POST("/process", handlers.CreatePaymentIntent(db, provider, pricing))
		paymentsGroup.POST("/verify", handlers.VerifyPayment(db, provider))
	}

	orders := r.Group("/api/orders")
	{
		// Unauthenticated on purpose: Stripe signs the payload instead.
		orders.POST("/webhook", handlers.StripeWebhook(db, config.AppEnv.StripeWebhookSecret))

		orders.GET("/myorders", userAuth, handlers.GetMyOrders(db))
		orders.GET("/:id", userAuth, handlers.GetOrderByID(db))

		orders.GET("", userAuth, adminOnly, handlers.GetAllOrders(db))
		orders.PATCH("/:id/status", userAuth, adminOnly, handlers.UpdateOrderStatus(db))
	}

	r.POST("/api/upload", userAuth, adminOnly, handlers.UploadImages(uploadStorage))

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	r.Run(":" + port)
}
