package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"ticket-engine/config"
	"ticket-engine/internal/cache"
	"ticket-engine/internal/database"
	"ticket-engine/internal/handler"
	"ticket-engine/internal/payment"
	"ticket-engine/internal/queue"
	"ticket-engine/internal/repository"
	"ticket-engine/internal/service"
	"ticket-engine/internal/worker"
	"ticket-engine/pkg/logger"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg := config.LoadConfig()
	defer logger.Sync()

	pool, err := database.InitDatabase(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer pool.Close()

	rdb, err := database.InitRedis(&cfg.Redis)
	if err != nil {
		log.Fatalf("Failed to initialize redis: %v", err)
	}
	defer rdb.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// repositories
	eventRepo := repository.NewEventRepository(pool)
	ticketTypeRepo := repository.NewTicketTypeRepository(pool)
	seatRepo := repository.NewSeatRepository(pool)
	promoRepo := repository.NewPromoRepository(pool)
	ticketRepo := repository.NewTicketRepository(pool)
	referralRepo := repository.NewReferralRepository(pool)

	// redis ledgers
	capacityLedger := cache.NewCapacityLedger(rdb)
	seatLedger := cache.NewSeatLedger(rdb)
	promoLedger := cache.NewPromoLedger(rdb)

	// finalize queue：每個 instance 一個 consumer id
	ticketQueue, err := queue.NewRedisStreamTicketQueue(rdb, "server-"+uuid.New().String()[:8], nil)
	if err != nil {
		log.Fatalf("Failed to initialize ticket queue: %v", err)
	}

	providers := payment.NewRegistry(
		payment.MockProvider{},
		payment.HostedProvider{ProviderName: "paystack", CheckoutBase: "https://checkout.paystack.com/"},
		payment.HostedProvider{ProviderName: "stripe", CheckoutBase: "https://checkout.stripe.com/pay/"},
	)

	// services
	purchaseService := service.NewPurchaseService(
		pool, eventRepo, ticketTypeRepo, seatRepo, promoRepo, ticketRepo, referralRepo,
		capacityLedger, seatLedger, promoLedger, ticketQueue, providers,
		cfg.Engine.HoldTTL, cfg.Engine.PurchaseTimeout,
	)
	eventService := service.NewEventService(
		eventRepo, ticketTypeRepo, seatRepo, promoRepo, capacityLedger, seatLedger, promoLedger,
	)
	promoService := service.NewPromoService(promoRepo, promoLedger)
	scannerService := service.NewScannerService(eventRepo, ticketRepo)
	influencerService := service.NewInfluencerService(referralRepo, getEnvOr("PUBLIC_BASE_URL", "https://tickets.example.com"))

	// background workers
	finalizeWorker := worker.NewFinalizeWorker(purchaseService, ticketQueue, cfg.Engine.WorkerCount)
	if err := finalizeWorker.Start(ctx); err != nil {
		log.Fatalf("Failed to start finalize worker: %v", err)
	}
	reaper := worker.NewHoldReaper(capacityLedger, seatLedger, promoLedger, eventRepo, ticketRepo, cfg.Engine.ReapInterval)
	reaper.Start(ctx)

	router := gin.Default()
	router.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"message": "pong",
		})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	handler.NewEventHandler(eventService).RegisterRoutes(router)
	handler.NewPurchaseHandler(purchaseService).RegisterRoutes(router)
	handler.NewPromoHandler(promoService, eventService).RegisterRoutes(router)
	handler.NewScannerHandler(scannerService).RegisterRoutes(router)
	handler.NewInfluencerHandler(influencerService).RegisterRoutes(router)

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Forced shutdown: %v", err)
	}
}

func getEnvOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
