package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ekaya-inc/downtime-engine/pkg/apperrors"
	"github.com/ekaya-inc/downtime-engine/pkg/database"
	"github.com/ekaya-inc/downtime-engine/pkg/logging"
	"github.com/ekaya-inc/downtime-engine/pkg/models"
	"github.com/ekaya-inc/downtime-engine/pkg/querybuilder"
)

// EntityRef identifies a reference entity by id, display name, or both.
type EntityRef struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

func (r EntityRef) clean() EntityRef {
	return EntityRef{ID: models.CleanValue(r.ID), Name: models.CleanValue(r.Name)}
}

func (r EntityRef) empty() bool {
	return r.ID == "" && r.Name == ""
}

// LookupRequest asks for the canonical ids of a process, model and equipment.
type LookupRequest struct {
	Process   EntityRef
	Model     EntityRef
	Equipment EntityRef
}

// LookupResult holds the resolved ids; nil means not requested or not found.
type LookupResult struct {
	ProcessID   *string `json:"process_id"`
	ModelID     *string `json:"model_id"`
	EquipmentID *string `json:"eqp_id"`
}

// LookupService resolves ids and display names to canonical ids.
type LookupService interface {
	LookupIDs(ctx context.Context, req LookupRequest) (*LookupResult, error)
}

type lookupService struct {
	builder *querybuilder.Builder
	store   database.Store
	logger  *zap.Logger
}

var _ LookupService = (*lookupService)(nil)

// NewLookupService creates a LookupService.
func NewLookupService(builder *querybuilder.Builder, store database.Store, logger *zap.Logger) LookupService {
	return &lookupService{
		builder: builder,
		store:   store,
		logger:  logger.Named("lookup"),
	}
}

// LookupIDs resolves each requested entity independently. A failing lookup
// leaves its id nil; only an unreachable store fails the whole call.
func (s *lookupService) LookupIDs(ctx context.Context, req LookupRequest) (*LookupResult, error) {
	if err := s.store.Ping(ctx); err != nil {
		s.logger.Error("Store unreachable", zap.String("error", logging.SanitizeError(err)))
		return nil, fmt.Errorf("%w: %w", apperrors.ErrStoreUnavailable, err)
	}

	return &LookupResult{
		ProcessID:   s.resolve(ctx, querybuilder.IDProcess, req.Process.clean()),
		ModelID:     s.resolve(ctx, querybuilder.IDModel, req.Model.clean()),
		EquipmentID: s.resolve(ctx, querybuilder.IDEquipment, req.Equipment.clean()),
	}, nil
}

func (s *lookupService) resolve(ctx context.Context, kind querybuilder.IDKind, ref EntityRef) *string {
	if ref.empty() {
		return nil
	}

	plan, err := s.builder.BuildIDLookupQuery(kind, ref.ID, ref.Name)
	if err != nil {
		s.logger.Warn("Invalid id lookup", zap.String("kind", string(kind)), zap.Error(err))
		return nil
	}

	rows, err := s.builder.ExecuteQuery(ctx, plan, 1)
	if err != nil {
		s.logger.Error("Id lookup failed",
			zap.String("kind", string(kind)),
			zap.String("error", logging.SanitizeError(err)))
		return nil
	}
	if len(rows) == 0 {
		s.logger.Warn("No id found",
			zap.String("kind", string(kind)),
			zap.String("id", ref.ID),
			zap.String("name", ref.Name))
		return nil
	}

	id := rows[0].String("id")
	if id == "" {
		return nil
	}
	s.logger.Info("Resolved id",
		zap.String("kind", string(kind)),
		zap.String("id", ref.ID),
		zap.String("name", ref.Name),
		zap.String("resolved", id))
	return &id
}
