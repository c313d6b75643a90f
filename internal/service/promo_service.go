package service

import (
	"context"
	"errors"
	"ticket-engine/internal/cache"
	"ticket-engine/internal/model"
	"ticket-engine/internal/repository"
	apperrors "ticket-engine/pkg/app_errors"
	"ticket-engine/pkg/logger"
	"time"

	"go.uber.org/zap"
)

type PromoService interface {
	Create(ctx context.Context, eventID int, req model.CreatePromoRequest) (*model.PromoCode, error)
	ListByEvent(ctx context.Context, eventID int) ([]*model.PromoCode, error)
	ToggleActive(ctx context.Context, id int, eventID int) (*model.PromoCode, error)
	Delete(ctx context.Context, id int, eventID int) error
	// Validate 結帳前的預檢，不扣額度；真正的兌換在購買流程裡
	Validate(ctx context.Context, eventID int, code string) (*model.PromoValidateResponse, error)
}

type PromoServiceImpl struct {
	promoRepo   repository.PromoRepository
	promoLedger cache.PromoLedger
}

func NewPromoService(promoRepo repository.PromoRepository, promoLedger cache.PromoLedger) PromoService {
	return &PromoServiceImpl{
		promoRepo:   promoRepo,
		promoLedger: promoLedger,
	}
}

func (s *PromoServiceImpl) Create(ctx context.Context, eventID int, req model.CreatePromoRequest) (*model.PromoCode, error) {
	promo := &model.PromoCode{
		EventID:            eventID,
		Code:               req.Code,
		DiscountPercentage: req.DiscountPercentage,
		UsageLimit:         req.UsageLimit,
		IsActive:           true,
		StartsAt:           req.StartsAt,
		ExpiresAt:          req.ExpiresAt,
	}

	created, err := s.promoRepo.Create(ctx, promo)
	if err != nil {
		return nil, err
	}

	s.warm(ctx, created)
	return created, nil
}

func (s *PromoServiceImpl) ListByEvent(ctx context.Context, eventID int) ([]*model.PromoCode, error) {
	return s.promoRepo.ListByEvent(ctx, eventID)
}

func (s *PromoServiceImpl) ToggleActive(ctx context.Context, id int, eventID int) (*model.PromoCode, error) {
	promo, err := s.promoRepo.ToggleActive(ctx, id, eventID)
	if err != nil {
		return nil, err
	}

	s.warm(ctx, promo)
	return promo, nil
}

func (s *PromoServiceImpl) Delete(ctx context.Context, id int, eventID int) error {
	return s.promoRepo.Delete(ctx, id, eventID)
}

func (s *PromoServiceImpl) Validate(ctx context.Context, eventID int, code string) (*model.PromoValidateResponse, error) {
	promo, err := s.promoRepo.FindByCode(ctx, eventID, code)
	if err != nil {
		if errors.Is(err, apperrors.ErrPromoNotFound) {
			return &model.PromoValidateResponse{Valid: false, Reason: "not_found"}, nil
		}
		return nil, err
	}

	now := time.Now()
	switch {
	case !promo.IsActive:
		return &model.PromoValidateResponse{Valid: false, Reason: "inactive"}, nil
	case !promo.InWindow(now):
		return &model.PromoValidateResponse{Valid: false, Reason: "expired"}, nil
	case !promo.HasBudget():
		return &model.PromoValidateResponse{Valid: false, Reason: "limit_reached"}, nil
	}

	return &model.PromoValidateResponse{
		Valid:              true,
		DiscountPercentage: promo.DiscountPercentage,
		RemainingUses:      promo.RemainingUses(),
	}, nil
}

// warm 折扣碼異動後同步 redis 帳本
func (s *PromoServiceImpl) warm(ctx context.Context, promo *model.PromoCode) {
	var startsAt, expiresAt time.Time
	if promo.StartsAt != nil {
		startsAt = *promo.StartsAt
	}
	if promo.ExpiresAt != nil {
		expiresAt = *promo.ExpiresAt
	}

	err := s.promoLedger.WarmUp(ctx, promo.ID, promo.IsActive, startsAt, expiresAt, promo.UsageLimit, promo.UsedCount)
	if err != nil {
		logger.WithComponent("promo").Warn("failed to warm promo ledger",
			zap.Int("promo_id", promo.ID), zap.Error(err))
	}
}
