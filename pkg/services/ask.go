package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ekaya-inc/downtime-engine/pkg/apperrors"
	"github.com/ekaya-inc/downtime-engine/pkg/database"
	"github.com/ekaya-inc/downtime-engine/pkg/extractor"
	"github.com/ekaya-inc/downtime-engine/pkg/llm"
	"github.com/ekaya-inc/downtime-engine/pkg/logging"
	"github.com/ekaya-inc/downtime-engine/pkg/models"
	"github.com/ekaya-inc/downtime-engine/pkg/querybuilder"
)

// Answer sources reported to callers.
const (
	SourceDatabase = "database"
	SourceExternal = "external"
	SourceFallback = "fallback"
)

// StoreUnavailableMessage is shown when the data store cannot be reached.
const StoreUnavailableMessage = "데이터베이스에 연결할 수 없습니다. 잠시 후 다시 시도해 주세요."

// FallbackMessage answers questions that carry no usable condition when no
// external answer could be obtained.
const FallbackMessage = `질문에서 조회 조건을 찾지 못했습니다. 사이트, 공장, 공정, 장비, 다운타임 유형, 기간 등을 포함해 다시 질문해 주세요.

예시:
- 포토 공정 비계획 다운타임 2시간 이상 보여줘
- FAC_M16 공장 장비 다운타임
- EQP_PH_001 장비 지난 주 다운타임
- 이천 사이트 에러 코드 ERR_001 진행중 건
- 식각 공정 이번 달 30분 초과 다운타임`

// AskRequest is one natural-language question, optionally with filter hints
// supplied by an upstream workflow.
type AskRequest struct {
	Question string
	Hints    *models.DowntimeFilter
	Context  string
	// Limit caps the returned rows; 0 uses the configured default.
	Limit int
}

// AskResult is the answer to a question.
type AskResult struct {
	Answer      string
	Question    string
	Success     bool
	IsSpecific  bool
	ResultCount int
	Source      string
	Filter      models.DowntimeFilter
}

// Analysis is the dry-run view of a question: what was extracted and the
// query it would run.
type Analysis struct {
	Filter     models.DowntimeFilter `json:"filter"`
	IsSpecific bool                  `json:"is_specific"`
	Query      *querybuilder.Plan    `json:"query,omitempty"`
}

// AskService routes a question to the database or the external answer service.
type AskService interface {
	// Ask answers the question. Specific questions are answered from the
	// store; everything else goes to the answer service or the fallback.
	Ask(ctx context.Context, req AskRequest) (*AskResult, error)

	// Analyze extracts the filter and builds the row query without running it.
	Analyze(question string, hints *models.DowntimeFilter) (*Analysis, error)
}

type askService struct {
	extractor *extractor.Extractor
	builder   *querybuilder.Builder
	store     database.Store
	answers   llm.AnswerClient // nil when no answer service is configured
	logger    *zap.Logger
}

var _ AskService = (*askService)(nil)

// NewAskService creates the question router. answers may be nil.
func NewAskService(
	ex *extractor.Extractor,
	builder *querybuilder.Builder,
	store database.Store,
	answers llm.AnswerClient,
	logger *zap.Logger,
) AskService {
	return &askService{
		extractor: ex,
		builder:   builder,
		store:     store,
		answers:   answers,
		logger:    logger.Named("ask"),
	}
}

// filterFor extracts the question's filter and applies hints on top.
func (s *askService) filterFor(question string, hints *models.DowntimeFilter) models.DowntimeFilter {
	filter := s.extractor.Analyze(question).Filter
	if hints != nil {
		filter = filter.Merge(hints.Normalize())
	}
	return filter.Normalize()
}

func (s *askService) Ask(ctx context.Context, req AskRequest) (*AskResult, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, fmt.Errorf("%w: question is required", apperrors.ErrValidation)
	}

	filter := s.filterFor(question, req.Hints)
	if filter.IsSpecific() {
		if err := filter.Validate(); err != nil {
			return nil, err
		}
		return s.answerFromStore(ctx, question, filter, req.Limit)
	}

	s.logger.Debug("No filter extracted; delegating", zap.String("question", logging.TruncateString(question, 200)))
	return s.answerExternally(ctx, question, req.Context), nil
}

func (s *askService) answerFromStore(ctx context.Context, question string, filter models.DowntimeFilter, limit int) (*AskResult, error) {
	if err := s.store.Ping(ctx); err != nil {
		s.logger.Error("Store unreachable", zap.String("error", logging.SanitizeError(err)))
		return nil, fmt.Errorf("%w: %w", apperrors.ErrStoreUnavailable, err)
	}

	plan, err := s.builder.BuildQuery(filter)
	if err != nil {
		return nil, err
	}

	var (
		rows  []models.Row
		stats models.DowntimeStatistics
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		stats, err = s.builder.GetStatistics(gctx, filter)
		return err
	})
	g.Go(func() error {
		var err error
		rows, err = s.builder.ExecuteQuery(gctx, plan, limit)
		return err
	})
	if err := g.Wait(); err != nil {
		if !errors.Is(err, apperrors.ErrStoreUnavailable) {
			err = fmt.Errorf("%w: %w", apperrors.ErrStoreUnavailable, err)
		}
		return nil, err
	}

	s.logger.Info("Answered from store",
		zap.Int("rows", len(rows)),
		zap.Int64("total_count", stats.TotalCount))

	return &AskResult{
		Answer:      FormatAnswer(filter, rows, stats),
		Question:    question,
		Success:     true,
		IsSpecific:  true,
		ResultCount: len(rows),
		Source:      SourceDatabase,
		Filter:      filter,
	}, nil
}

// answerExternally never fails: any answer-service error degrades to the
// fallback guidance.
func (s *askService) answerExternally(ctx context.Context, question, promptContext string) *AskResult {
	fallback := &AskResult{
		Answer:   FallbackMessage,
		Question: question,
		Source:   SourceFallback,
	}
	if s.answers == nil {
		return fallback
	}

	answer, err := s.answers.RequestAnswer(ctx, question, promptContext)
	if err != nil {
		s.logger.Warn("Answer service failed; using fallback",
			zap.String("error_type", string(llm.GetErrorType(err))),
			zap.String("error", logging.SanitizeError(err)))
		return fallback
	}

	return &AskResult{
		Answer:   answer,
		Question: question,
		Success:  true,
		Source:   SourceExternal,
	}
}

func (s *askService) Analyze(question string, hints *models.DowntimeFilter) (*Analysis, error) {
	filter := s.filterFor(question, hints)
	out := &Analysis{Filter: filter, IsSpecific: filter.IsSpecific()}
	if !out.IsSpecific {
		return out, nil
	}

	plan, err := s.builder.BuildQuery(filter)
	if err != nil {
		return nil, err
	}
	out.Query = &plan
	return out, nil
}
