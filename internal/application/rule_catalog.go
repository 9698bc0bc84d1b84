package application

import (
	"context"
	"fmt"

	"github.com/orderkit/cost-engine/internal/domain"
	"github.com/orderkit/cost-engine/pkg/cloudevents"
	"github.com/orderkit/cost-engine/pkg/errors"
	"github.com/orderkit/cost-engine/pkg/kafka"
	"github.com/orderkit/cost-engine/pkg/logging"
	"github.com/orderkit/cost-engine/pkg/outbox"
)

// RuleCatalogService manages the tenant fee rule catalog. Deletions are
// soft so existing snapshots keep valid references.
type RuleCatalogService struct {
	rules  domain.RuleRepository
	outbox outbox.Repository
	events *cloudevents.EventFactory
	logger *logging.Logger
}

// NewRuleCatalogService creates a RuleCatalogService. The outbox
// repository may be nil when eventing is disabled.
func NewRuleCatalogService(rules domain.RuleRepository, outboxRepo outbox.Repository, events *cloudevents.EventFactory, logger *logging.Logger) *RuleCatalogService {
	return &RuleCatalogService{
		rules:  rules,
		outbox: outboxRepo,
		events: events,
		logger: logger.WithComponent("rule-catalog"),
	}
}

// CreateRule validates and stores a new rule
func (s *RuleCatalogService) CreateRule(ctx context.Context, tenantID string, cmd *CreateRuleCommand) (*domain.FeeRule, error) {
	rule, err := RuleFromCommand(tenantID, cmd)
	if err != nil {
		return nil, errors.ErrValidation(err.Error())
	}

	if err := s.rules.Save(ctx, rule); err != nil {
		return nil, fmt.Errorf("saving rule: %w", err)
	}

	s.stageRuleEvent(ctx, tenantID, rule.RuleID, "created")
	s.logger.Info("Fee rule created", "ruleId", rule.RuleID, "category", string(rule.Category))
	return rule, nil
}

// DeleteRule soft-deletes a rule. Orders whose snapshots reference it
// keep those references; they surface through the orphan diagnostics.
func (s *RuleCatalogService) DeleteRule(ctx context.Context, tenantID, ruleID string) error {
	rule, err := s.rules.FindByRuleID(ctx, ruleID)
	if err != nil {
		return err
	}
	if rule == nil || rule.TenantID != tenantID {
		return errors.ErrNotFound("fee rule", ruleID)
	}

	if err := rule.SoftDelete(); err != nil {
		return errors.ErrConflict("fee rule already deleted").WithCause(err)
	}
	if err := s.rules.Save(ctx, rule); err != nil {
		return fmt.Errorf("saving rule: %w", err)
	}

	s.stageRuleEvent(ctx, tenantID, ruleID, "deleted")
	s.logger.Info("Fee rule soft-deleted", "ruleId", ruleID)
	return nil
}

// ListRules returns the tenant's rules, optionally including deleted ones
func (s *RuleCatalogService) ListRules(ctx context.Context, tenantID string, includeDeleted bool) ([]*domain.FeeRule, error) {
	return s.rules.FindAll(ctx, tenantID, includeDeleted)
}

// GetRule returns one rule
func (s *RuleCatalogService) GetRule(ctx context.Context, tenantID, ruleID string) (*domain.FeeRule, error) {
	rule, err := s.rules.FindByRuleID(ctx, ruleID)
	if err != nil {
		return nil, err
	}
	if rule == nil || rule.TenantID != tenantID {
		return nil, errors.ErrNotFound("fee rule", ruleID)
	}
	return rule, nil
}

// PreviewRule evaluates a rule draft against an order payload without
// touching the catalog.
func (s *RuleCatalogService) PreviewRule(ctx context.Context, tenantID string, cmd *PreviewRuleCommand) (*RulePreviewDTO, error) {
	rule, err := RuleFromCommand(tenantID, &cmd.Rule)
	if err != nil {
		return nil, errors.ErrValidation(err.Error())
	}

	order := OrderFromPreview(tenantID, &cmd.Order)
	preview := &RulePreviewDTO{Matches: rule.Matches(order)}
	if preview.Matches {
		preview.Value = domain.RoundDisplay(rule.ValueFor(order))
	}
	return preview, nil
}

func (s *RuleCatalogService) stageRuleEvent(ctx context.Context, tenantID, ruleID, action string) {
	if s.outbox == nil || s.events == nil {
		return
	}
	event := s.events.CreateRuleChangedEvent(tenantID, &cloudevents.RuleChangedData{
		RuleID: ruleID,
		Action: action,
	})
	staged, err := outbox.NewEventFromCloudEvent(ruleID, "fee_rule", kafka.Topics.CostEvents, event)
	if err != nil {
		s.logger.WithError(err).Error("Failed to stage rule event", "ruleId", ruleID)
		return
	}
	if err := s.outbox.Save(ctx, staged); err != nil {
		s.logger.WithError(err).Error("Failed to save rule event", "ruleId", ruleID)
	}
}
