package service

import (
	"context"
	"fmt"
	"strings"
	"ticket-engine/internal/model"
	"ticket-engine/internal/repository"

	"github.com/google/uuid"
)

type InfluencerService interface {
	Create(ctx context.Context, organizerID uuid.UUID, req model.CreateInfluencerRequest) (*model.Influencer, error)
	List(ctx context.Context, organizerID uuid.UUID) ([]*model.Influencer, error)
	Get(ctx context.Context, id int, organizerID uuid.UUID) (*model.Influencer, error)
	Update(ctx context.Context, id int, organizerID uuid.UUID, req model.UpdateInfluencerRequest) (*model.Influencer, error)
	Delete(ctx context.Context, id int, organizerID uuid.UUID) error
	// ReferralLink 推廣連結，碼跟連結一起回
	ReferralLink(ctx context.Context, id int, organizerID uuid.UUID, eventID uuid.UUID) (*model.ReferralLinkResponse, error)
	Attributions(ctx context.Context, id int, organizerID uuid.UUID) ([]*model.ReferralAttribution, error)
}

type InfluencerServiceImpl struct {
	referralRepo repository.ReferralRepository
	baseURL      string
}

func NewInfluencerService(referralRepo repository.ReferralRepository, baseURL string) InfluencerService {
	return &InfluencerServiceImpl{
		referralRepo: referralRepo,
		baseURL:      strings.TrimRight(baseURL, "/"),
	}
}

func (s *InfluencerServiceImpl) Create(ctx context.Context, organizerID uuid.UUID, req model.CreateInfluencerRequest) (*model.Influencer, error) {
	influencer := &model.Influencer{
		OrganizerID:  organizerID,
		Name:         req.Name,
		Email:        req.Email,
		SocialHandle: req.SocialHandle,
		Bio:          req.Bio,
		ReferralCode: newReferralCode(req.Name),
		ReferralRate: req.ReferralRate,
		IsActive:     true,
	}

	return s.referralRepo.CreateInfluencer(ctx, influencer)
}

func (s *InfluencerServiceImpl) List(ctx context.Context, organizerID uuid.UUID) ([]*model.Influencer, error) {
	return s.referralRepo.ListInfluencers(ctx, organizerID)
}

func (s *InfluencerServiceImpl) Get(ctx context.Context, id int, organizerID uuid.UUID) (*model.Influencer, error) {
	return s.referralRepo.FindInfluencer(ctx, id, organizerID)
}

func (s *InfluencerServiceImpl) Update(ctx context.Context, id int, organizerID uuid.UUID, req model.UpdateInfluencerRequest) (*model.Influencer, error) {
	return s.referralRepo.UpdateInfluencer(ctx, id, organizerID, req)
}

func (s *InfluencerServiceImpl) Delete(ctx context.Context, id int, organizerID uuid.UUID) error {
	return s.referralRepo.DeleteInfluencer(ctx, id, organizerID)
}

func (s *InfluencerServiceImpl) ReferralLink(ctx context.Context, id int, organizerID uuid.UUID, eventID uuid.UUID) (*model.ReferralLinkResponse, error) {
	influencer, err := s.referralRepo.FindInfluencer(ctx, id, organizerID)
	if err != nil {
		return nil, err
	}

	return &model.ReferralLinkResponse{
		ReferralCode: influencer.ReferralCode,
		ReferralLink: fmt.Sprintf("%s/events/%s?ref=%s", s.baseURL, eventID, influencer.ReferralCode),
	}, nil
}

func (s *InfluencerServiceImpl) Attributions(ctx context.Context, id int, organizerID uuid.UUID) ([]*model.ReferralAttribution, error) {
	if _, err := s.referralRepo.FindInfluencer(ctx, id, organizerID); err != nil {
		return nil, err
	}
	return s.referralRepo.ListAttributionsByInfluencer(ctx, id)
}

// newReferralCode 名字前綴加亂碼尾巴，可讀又不易撞碼
func newReferralCode(name string) string {
	prefix := strings.ToUpper(strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			return r
		}
		return -1
	}, name))
	if len(prefix) > 4 {
		prefix = prefix[:4]
	}
	if prefix == "" {
		prefix = "REF"
	}
	return prefix + "-" + strings.ToUpper(uuid.New().String()[:6])
}
