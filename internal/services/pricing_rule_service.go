package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"lounge_backend/internal/models"
	"lounge_backend/internal/policy"
	"lounge_backend/internal/pricing"
	"lounge_backend/internal/repositories"
	"lounge_backend/pkg/utils"
)

// CreatePricingRuleRequest describes a new, immutable pricing rule.
type CreatePricingRuleRequest struct {
	Name                string               `json:"name" binding:"required"`
	ChargeMode          string               `json:"charge_mode" binding:"required"`
	Rate                *float64             `json:"rate"`
	Flexible            *models.FlexibleRate `json:"flexible"`
	IncludedPlayers     int                  `json:"included_players" binding:"gte=0"`
	IncludedControllers int                  `json:"included_controllers" binding:"gte=0"`
	ExtraPersonRate     float64              `json:"extra_person_rate" binding:"gte=0"`
	ExtraControllerRate float64              `json:"extra_controller_rate" binding:"gte=0"`
}

type PricingRuleService interface {
	CreateRule(ctx context.Context, actor Actor, req CreatePricingRuleRequest) (*models.PricingRule, error)
	GetRule(ctx context.Context, actor Actor, id int64) (*models.PricingRule, error)
	ListRules(ctx context.Context, actor Actor) ([]models.PricingRule, error)
}

type pricingRuleService struct {
	rulesRepo repositories.PricingRuleRepository
	db        *sql.DB
	now       Clock
}

// NewPricingRuleService creates a new instance of PricingRuleService.
func NewPricingRuleService(prr repositories.PricingRuleRepository, db *sql.DB, clock Clock) PricingRuleService {
	return &pricingRuleService{rulesRepo: prr, db: db, now: clock}
}

func (s *pricingRuleService) CreateRule(ctx context.Context, actor Actor, req CreatePricingRuleRequest) (*models.PricingRule, error) {
	if err := authorize(actor, policy.OpPricingRuleCreate, policy.ResourceState{}); err != nil {
		return nil, err
	}
	if utils.IsEmpty(req.Name) {
		return nil, fmt.Errorf("%w: name is required", ErrValidation)
	}
	if !models.IsValidChargeMode(req.ChargeMode) {
		return nil, fmt.Errorf("%w: unknown charge mode '%s'", ErrValidation, req.ChargeMode)
	}

	rule := &models.PricingRule{
		Name:                strings.TrimSpace(req.Name),
		ChargeMode:          models.ChargeMode(req.ChargeMode),
		Rate:                req.Rate,
		Flexible:            req.Flexible,
		IncludedPlayers:     req.IncludedPlayers,
		IncludedControllers: req.IncludedControllers,
		ExtraPersonRate:     req.ExtraPersonRate,
		ExtraControllerRate: req.ExtraControllerRate,
		CreatedAt:           s.now(),
	}
	if err := pricing.Validate(rule); err != nil {
		if errors.Is(err, pricing.ErrInvalidRule) {
			return nil, fmt.Errorf("%w: %v", ErrValidation, err)
		}
		return nil, err
	}

	if _, err := s.rulesRepo.Create(ctx, s.db, rule); err != nil {
		return nil, err
	}
	utils.LogInfo("Pricing rule created", map[string]interface{}{
		"pricing_rule_id": rule.ID, "charge_mode": rule.ChargeMode, "operator_id": actor.OperatorID,
	})
	return rule, nil
}

func (s *pricingRuleService) GetRule(ctx context.Context, actor Actor, id int64) (*models.PricingRule, error) {
	if err := authorize(actor, policy.OpPricingRuleView, policy.ResourceState{}); err != nil {
		return nil, err
	}
	rule, err := s.rulesRepo.GetByID(ctx, nil, id)
	if err != nil {
		return nil, fromRepo(err, fmt.Sprintf("pricing rule %d", id))
	}
	return rule, nil
}

func (s *pricingRuleService) ListRules(ctx context.Context, actor Actor) ([]models.PricingRule, error) {
	if err := authorize(actor, policy.OpPricingRuleView, policy.ResourceState{}); err != nil {
		return nil, err
	}
	return s.rulesRepo.List(ctx)
}
