package service

import (
	"context"
	"fmt"
	"log"
	"os"
	"testing"
	"ticket-engine/config"
	"ticket-engine/internal/cache"
	"ticket-engine/internal/database"
	"ticket-engine/internal/model"
	"ticket-engine/internal/payment"
	"ticket-engine/internal/queue"
	"ticket-engine/internal/repository"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

var (
	testDB  *pgxpool.Pool
	testRdb *redis.Client
	testCfg *config.Config
)

func TestMain(m *testing.M) {
	testCfg = config.LoadTestConfig()

	var err error
	testDB, err = database.InitDatabase(&testCfg.Database)
	if err != nil {
		log.Fatalf("Failed to initialize test database: %v", err)
	}

	testRdb, err = database.InitRedis(&testCfg.Redis)
	if err != nil {
		log.Fatalf("Failed to initialize test redis: %v", err)
	}

	code := m.Run()
	testDB.Close()
	testRdb.Close()
	os.Exit(code)
}

func setupTest(t *testing.T) {
	t.Helper()
	ctx := context.Background()

	_, err := testDB.Exec(ctx, `
		TRUNCATE payment_transactions, referral_attributions, scan_log, seats, tickets,
			scanner_access_codes, promo_codes, ticket_types, seating_configs, influencers, events
		RESTART IDENTITY CASCADE
	`)
	if err != nil {
		t.Fatalf("Failed to truncate tables: %v", err)
	}

	if err := testRdb.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush redis: %v", err)
	}
}

// testEnv 組好一整套 service，測試共用
type testEnv struct {
	eventRepo      repository.EventRepository
	ticketTypeRepo repository.TicketTypeRepository
	seatRepo       repository.SeatRepository
	promoRepo      repository.PromoRepository
	ticketRepo     repository.TicketRepository
	referralRepo   repository.ReferralRepository
	capacityLedger cache.CapacityLedger
	seatLedger     cache.SeatLedger
	promoLedger    cache.PromoLedger
	queue          queue.TicketQueue
	purchase       PurchaseService
	scanner        ScannerService
	events         EventService
	promos         PromoService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		eventRepo:      repository.NewEventRepository(testDB),
		ticketTypeRepo: repository.NewTicketTypeRepository(testDB),
		seatRepo:       repository.NewSeatRepository(testDB),
		promoRepo:      repository.NewPromoRepository(testDB),
		ticketRepo:     repository.NewTicketRepository(testDB),
		referralRepo:   repository.NewReferralRepository(testDB),
		capacityLedger: cache.NewCapacityLedger(testRdb),
		seatLedger:     cache.NewSeatLedger(testRdb),
		promoLedger:    cache.NewPromoLedger(testRdb),
		queue:          queue.NewMemoryTicketQueue(testCfg.Engine.QueueBufferSize),
	}

	providers := payment.NewRegistry(
		payment.MockProvider{},
		payment.HostedProvider{ProviderName: "paystack"},
		payment.HostedProvider{ProviderName: "stripe"},
	)

	env.purchase = NewPurchaseService(
		testDB, env.eventRepo, env.ticketTypeRepo, env.seatRepo, env.promoRepo,
		env.ticketRepo, env.referralRepo, env.capacityLedger, env.seatLedger,
		env.promoLedger, env.queue, providers,
		testCfg.Engine.HoldTTL, testCfg.Engine.PurchaseTimeout,
	)
	env.scanner = NewScannerService(env.eventRepo, env.ticketRepo)
	env.events = NewEventService(
		env.eventRepo, env.ticketTypeRepo, env.seatRepo, env.promoRepo,
		env.capacityLedger, env.seatLedger, env.promoLedger,
	)
	env.promos = NewPromoService(env.promoRepo, env.promoLedger)

	return env
}

func createTestEvent(t *testing.T, env *testEnv) *model.Event {
	t.Helper()
	ctx := context.Background()

	event, err := env.eventRepo.Create(ctx, &model.Event{
		EventID:     uuid.New(),
		OrganizerID: uuid.New(),
		Title:       "Test Concert",
		Location:    "Lagos",
		Currency:    "NGN",
		Status:      model.EventStatusActive,
		StartsAt:    time.Now().Add(24 * time.Hour),
		EndsAt:      time.Now().Add(30 * time.Hour),
	})
	if err != nil {
		t.Fatalf("Failed to create test event: %v", err)
	}
	return event
}

// createTestTicketType 建立票種並預熱容量帳本
func createTestTicketType(t *testing.T, env *testEnv, eventID int, price float64, capacity, maxPerUser int) *model.TicketType {
	t.Helper()
	ctx := context.Background()

	tt, err := env.ticketTypeRepo.Create(ctx, &model.TicketType{
		EventID:       eventID,
		Name:          "Regular",
		Price:         price,
		TotalCapacity: capacity,
		MaxPerUser:    maxPerUser,
	})
	if err != nil {
		t.Fatalf("Failed to create test ticket type: %v", err)
	}

	if err := env.capacityLedger.WarmUp(ctx, tt.ID, tt.TotalCapacity, tt.ReservedCount); err != nil {
		t.Fatalf("Failed to warm capacity ledger: %v", err)
	}
	return tt
}

// createTestSeatedTicketType 建立帶座位表的票種並預熱兩個帳本
func createTestSeatedTicketType(t *testing.T, env *testEnv, eventID int, price float64, rows, columns int) *model.TicketType {
	t.Helper()
	ctx := context.Background()

	cfg, err := env.eventRepo.CreateSeatingConfig(ctx, &model.SeatingConfig{
		EventID: eventID,
		Kind:    model.LayoutGrid,
		Rows:    rows,
		Columns: columns,
	})
	if err != nil {
		t.Fatalf("Failed to create seating config: %v", err)
	}
	if _, err := env.seatRepo.CreateForConfig(ctx, cfg); err != nil {
		t.Fatalf("Failed to create seats: %v", err)
	}

	tt, err := env.ticketTypeRepo.Create(ctx, &model.TicketType{
		EventID:         eventID,
		Name:            "Seated",
		Price:           price,
		TotalCapacity:   cfg.Capacity(),
		HasSeating:      true,
		SeatingConfigID: &cfg.ID,
	})
	if err != nil {
		t.Fatalf("Failed to create seated ticket type: %v", err)
	}

	if err := env.capacityLedger.WarmUp(ctx, tt.ID, tt.TotalCapacity, tt.ReservedCount); err != nil {
		t.Fatalf("Failed to warm capacity ledger: %v", err)
	}
	if err := env.seatLedger.WarmUp(ctx, cfg.ID, cfg.SeatLabels()); err != nil {
		t.Fatalf("Failed to warm seat ledger: %v", err)
	}
	return tt
}

// createTestPromo 建立折扣碼並預熱折扣帳本
func createTestPromo(t *testing.T, env *testEnv, eventID int, code string, discount float64, limit int) *model.PromoCode {
	t.Helper()
	ctx := context.Background()

	promo, err := env.promoRepo.Create(ctx, &model.PromoCode{
		EventID:            eventID,
		Code:               code,
		DiscountPercentage: discount,
		UsageLimit:         limit,
		IsActive:           true,
	})
	if err != nil {
		t.Fatalf("Failed to create test promo: %v", err)
	}

	if err := env.promoLedger.WarmUp(ctx, promo.ID, true, time.Time{}, time.Time{}, limit, 0); err != nil {
		t.Fatalf("Failed to warm promo ledger: %v", err)
	}
	return promo
}

func createTestInfluencer(t *testing.T, env *testEnv, rate float64) *model.Influencer {
	t.Helper()
	ctx := context.Background()

	influencer, err := env.referralRepo.CreateInfluencer(ctx, &model.Influencer{
		OrganizerID:  uuid.New(),
		Name:         "Test Influencer",
		Email:        "influencer@test.com",
		ReferralCode: fmt.Sprintf("INF-%s", uuid.New().String()[:6]),
		ReferralRate: rate,
		IsActive:     true,
	})
	if err != nil {
		t.Fatalf("Failed to create test influencer: %v", err)
	}
	return influencer
}

func newPurchaseRequest(ticketTypeID, quantity int) model.PurchaseRequest {
	return model.PurchaseRequest{
		RequestID:       uuid.New().String(),
		BuyerID:         uuid.New(),
		BuyerName:       "Test Buyer",
		TicketTypeID:    ticketTypeID,
		Quantity:        quantity,
		PaymentProvider: "mock",
	}
}
