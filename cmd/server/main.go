package main

import (
	"context"
	"crypto/tls"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "rentmarket/docs"
	"rentmarket/pkg/auth"
	"rentmarket/pkg/config"
	"rentmarket/pkg/contractdoc"
	"rentmarket/pkg/contracts"
	"rentmarket/pkg/db"
	"rentmarket/pkg/messaging"
	"rentmarket/pkg/notify"
	"rentmarket/pkg/offers"
	"rentmarket/pkg/requests"
	"rentmarket/pkg/users"
)

// @title           Rent Market API
// @version         1.0
// @description     Rental marketplace: tenants post rental requests, landlords send offers, both sides chat and sign the lease.

// @BasePath  /
// @schemes   http https

// @securityDefinitions.apikey BearerAuth
// @in                         header
// @name                       Authorization

func main() {
	config.LoadEnv()
	cfg, err := config.LoadServer()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	pool, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer pool.Close()

	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		log.Fatalf("upload dir: %v", err)
	}

	issuer := auth.NewIssuer(cfg.JWTSecret, cfg.JWTTTL)
	requireAuth := issuer.Middleware()

	emailService := notify.NewDiscardService()
	if key := os.Getenv("SENDGRID_API_KEY"); key != "" {
		emailService = notify.NewSendgridService(key, os.Getenv("SENDGRID_SENDER_EMAIL"), os.Getenv("SENDGRID_SENDER_NAME"))
	} else {
		log.Println("SENDGRID_API_KEY not set, email notifications are disabled")
	}
	notifier := notify.NewNotifier(emailService)

	// Realtime fan-out goes through Redis when configured so several
	// instances share rooms.
	var broker messaging.Broker
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatalf("REDIS_URL: %v", err)
		}
		rdb := redis.NewClient(opt)
		defer rdb.Close()
		broker = messaging.NewRedisBroker(rdb)
	}
	hub := messaging.NewHub(broker)

	usersRepo := users.NewPostgresUserRepository(pool)
	usersService := users.NewUserService(usersRepo, issuer)
	usersHandler := users.NewUserHandler(usersService)

	conversationsRepo := messaging.NewPostgresConversationRepository(pool)
	messagingService := messaging.NewMessagingService(conversationsRepo, hub)
	messagingHandler := messaging.NewMessagingHandler(messagingService, cfg.UploadDir)
	wsHandler := messaging.NewWSHandler(hub, messagingService, usersService, cfg.AllowedOrigins)

	requestsRepo := requests.NewPostgresRequestRepository(pool)
	requestsService := requests.NewRequestService(requestsRepo, usersService)
	requestsHandler := requests.NewRequestHandler(requestsService)

	offersRepo := offers.NewPostgresOfferRepository(pool)

	contractsRepo := contracts.NewPostgresContractRepository(pool)
	generator := contractdoc.NewGenerator(usersService)
	contractsService := contracts.NewContractService(contractsRepo, offersRepo, usersService, generator, notifier)
	contractsHandler := contracts.NewContractHandler(contractsService)

	offersService := offers.NewOfferService(offersRepo, offers.Dependencies{
		Users:         usersService,
		Requests:      requestsService,
		Conversations: messagingService,
		Contracts:     contractsService,
		Notifier:      notifier,
	})
	offersHandler := offers.NewOfferHandler(offersService, cfg.PaymentCallbackKey)

	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: cfg.AllowCredentials,
		MaxAge:           12 * time.Hour,
	}))

	usersHandler.RegisterRoutes(router, requireAuth)
	requestsHandler.RegisterRoutes(router, requireAuth)
	offersHandler.RegisterRoutes(router, requireAuth)
	contractsHandler.RegisterRoutes(router, requireAuth)
	messagingHandler.RegisterRoutes(router, requireAuth)
	wsHandler.RegisterRoutes(router, requireAuth)

	router.Static("/uploads", cfg.UploadDir)
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		if err := hub.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("realtime broker stopped: %v", err)
		}
	}()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		var err error
		if cfg.TLS.EnableTLS {
			srv.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
			log.Printf("Listening on :%s (TLS)", cfg.Port)
			err = srv.ListenAndServeTLS(cfg.TLS.CertPath, cfg.TLS.KeyPath)
		} else {
			log.Printf("Listening on :%s", cfg.Port)
			err = srv.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	cancel()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exiting")
}
