package evaluation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"dealguard/internal/constants"
	"dealguard/internal/logger"
	"dealguard/internal/rules"
	pkgerrors "dealguard/pkg/errors"
	"dealguard/pkg/logging"
	"dealguard/pkg/metrics"
	"dealguard/pkg/tracing"
)

// Service runs batch evaluations: snapshot, resolve, evaluate, summarize.
type Service struct {
	catalog    *rules.Catalog
	snapshot   SnapshotReader
	engine     *rules.Engine
	log        logger.Logger
	tracer     trace.Tracer
	maxRecords int
}

func NewService(catalog *rules.Catalog, snapshot SnapshotReader, engine *rules.Engine, log logger.Logger, maxRecords int) *Service {
	if log == nil {
		log = logger.NopLogger()
	}
	if maxRecords <= 0 {
		maxRecords = constants.DefaultMaxRecords
	}
	return &Service{
		catalog:    catalog,
		snapshot:   snapshot,
		engine:     engine,
		log:        log,
		tracer:     tracing.GetTracer("dealguard-evaluation"),
		maxRecords: maxRecords,
	}
}

func (s *Service) Evaluate(ctx context.Context, req EvaluateRequest) (*EvaluationResult, error) {
	if len(req.Records) > s.maxRecords {
		return nil, pkgerrors.ErrValidation.WithDetail("message",
			fmt.Sprintf("batch of %d records exceeds the limit of %d", len(req.Records), s.maxRecords))
	}

	evaluationID := uuid.New().String()
	ctx = logging.WithEvaluationID(ctx, evaluationID)

	start := time.Now()
	result, err := s.run(ctx, evaluationID, req)
	if err != nil {
		metrics.EvaluationRunsTotal.WithLabelValues("error").Inc()
		metrics.ObserveEvaluationDuration(time.Since(start), "error")
		return nil, err
	}
	metrics.EvaluationRunsTotal.WithLabelValues("success").Inc()
	metrics.ObserveEvaluationDuration(time.Since(start), "success")

	return result, nil
}

func (s *Service) run(ctx context.Context, evaluationID string, req EvaluateRequest) (*EvaluationResult, error) {
	effective, err := s.resolve(ctx, req.UserID, req.OrgID)
	if err != nil {
		s.log.ErrorwCtx(ctx, "failed to resolve effective rules", "error", err)
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, "evaluation.run", trace.WithAttributes(
		attribute.String("evaluation.id", evaluationID),
		attribute.Int("evaluation.records", len(req.Records)),
		attribute.Int("evaluation.rules", len(effective)),
	))
	defer span.End()

	runResult, err := s.engine.Run(ctx, effective, req.Records)
	if err != nil {
		s.log.ErrorwCtx(ctx, "evaluation run aborted", "error", err)
		return nil, wrapInternal(err)
	}

	metrics.EvaluationRecordsTotal.Add(float64(len(req.Records)))
	for _, violations := range runResult.ViolationsByRecord {
		for _, v := range violations {
			metrics.IncViolationFound(string(v.Severity), string(v.Category))
		}
	}
	for _, diag := range runResult.Diagnostics {
		metrics.MalformedRulesTotal.WithLabelValues(diag.RuleID).Inc()
	}

	summary := rules.Summarize(effective, runResult.ViolationsByRecord)

	s.log.InfowCtx(ctx, "evaluation complete",
		"records", len(req.Records),
		"rules", len(effective),
		"violations", summary.Violations.TotalViolations,
		"malformed_rules", len(runResult.Diagnostics),
	)

	return &EvaluationResult{
		EvaluationID:       evaluationID,
		ViolationsByRecord: runResult.ViolationsByRecord,
		Summary:            summary,
		Diagnostics:        runResult.Diagnostics,
		RemediationPlan:    rules.BuildRemediationPlan(runResult.ViolationsByRecord),
		RulesEvaluated:     len(effective),
		RecordsEvaluated:   len(req.Records),
	}, nil
}

// resolve snapshots overrides and custom rules, then merges them with the
// catalog. Snapshots are taken fresh per call.
func (s *Service) resolve(ctx context.Context, userID, orgID string) ([]rules.EffectiveRule, error) {
	ctx, span := s.tracer.Start(ctx, "evaluation.resolve")
	defer span.End()

	overrides, err := s.snapshot.ListOverrides(ctx, userID, orgID)
	if err != nil {
		return nil, wrapInternal(err)
	}
	customRules, err := s.snapshot.ListCustomRules(ctx, userID, orgID)
	if err != nil {
		return nil, wrapInternal(err)
	}

	effective := rules.Resolve(s.catalog.Rules(), overrides, customRules, userID, orgID)
	metrics.EffectiveRulesResolved.Observe(float64(len(effective)))
	span.SetAttributes(attribute.Int("evaluation.effective_rules", len(effective)))
	return effective, nil
}

func wrapInternal(err error) error {
	if err == nil {
		return nil
	}
	var appErr *pkgerrors.Error
	if errors.As(err, &appErr) {
		return err
	}
	return pkgerrors.Wrap(err, pkgerrors.ErrInternal)
}
