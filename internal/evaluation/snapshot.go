package evaluation

import (
	"context"

	"dealguard/internal/management"
	"dealguard/internal/rules"
	"dealguard/pkg/circuitbreaker"
)

// SnapshotReader takes the point-in-time override and custom-rule snapshots
// resolution runs over. Each evaluation request reads fresh; caching the
// resolved set here would let an override write go unseen.
type SnapshotReader interface {
	ListOverrides(ctx context.Context, userID, orgID string) ([]rules.GlobalRuleOverride, error)
	ListCustomRules(ctx context.Context, userID, orgID string) ([]rules.CustomRule, error)
}

// breakerSnapshotReader guards the evaluation path's database reads with a
// circuit breaker so a struggling postgres sheds load fast instead of
// queueing every batch behind timeouts.
type breakerSnapshotReader struct {
	overrideRepo management.OverrideRepository
	customRepo   management.CustomRuleRepository
	breaker      *circuitbreaker.Wrapper
}

func NewSnapshotReader(overrideRepo management.OverrideRepository, customRepo management.CustomRuleRepository, breaker *circuitbreaker.Wrapper) SnapshotReader {
	return &breakerSnapshotReader{
		overrideRepo: overrideRepo,
		customRepo:   customRepo,
		breaker:      breaker,
	}
}

func (r *breakerSnapshotReader) ListOverrides(ctx context.Context, userID, orgID string) ([]rules.GlobalRuleOverride, error) {
	result, err := r.breaker.ExecuteWithContext(ctx, func() (interface{}, error) {
		return r.overrideRepo.ListOverrides(ctx, userID, orgID)
	})
	if err != nil {
		return nil, err
	}
	overrides, _ := result.([]rules.GlobalRuleOverride)
	return overrides, nil
}

func (r *breakerSnapshotReader) ListCustomRules(ctx context.Context, userID, orgID string) ([]rules.CustomRule, error) {
	result, err := r.breaker.ExecuteWithContext(ctx, func() (interface{}, error) {
		return r.customRepo.ListCustomRules(ctx, userID, orgID)
	})
	if err != nil {
		return nil, err
	}
	customRules, _ := result.([]rules.CustomRule)
	return customRules, nil
}
