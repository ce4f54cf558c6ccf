package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"
	"gorm.io/gorm"

	"ffp-admin/apperrors"
	"ffp-admin/metrics"
	"ffp-admin/models"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// CreateProgramInput is the payload for a new program.
type CreateProgramInput struct {
	Name           string         `json:"name" validate:"required,max=100"`
	Enabled        *bool          `json:"enabled"`
	AssetName      string         `json:"asset_name"`
	TransferRatios []DesiredRatio `json:"transfer_ratios"`
}

// UpdateProgramInput replaces a program's fields and, when TransferRatios is
// non-nil, reconciles its active transfer ratios to exactly that set. A nil
// slice leaves ratios untouched; an empty one archives them all.
type UpdateProgramInput struct {
	Name           string         `json:"name" validate:"required,max=100"`
	Enabled        *bool          `json:"enabled" validate:"required"`
	AssetName      string         `json:"asset_name"` // blank keeps the current logo
	TransferRatios []DesiredRatio `json:"transfer_ratios"`
	Version        *int64         `json:"version"`
}

// ListProgramsQuery selects one page of programs. Page is zero-based.
type ListProgramsQuery struct {
	Page     int `query:"page" json:"page" validate:"gte=0"`
	PageSize int `query:"page_size" json:"page_size" validate:"gte=1,lte=100"`
}

// ProgramPage is one page of an owner's active programs.
type ProgramPage struct {
	Programs   []models.Program  `json:"programs"`
	Pagination models.Pagination `json:"pagination"`
}

// ProgramService owns program persistence and the transfer-ratio reconciler.
type ProgramService struct {
	db      *gorm.DB
	log     *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewProgramService(db *gorm.DB, log *zap.Logger, m *metrics.Metrics) *ProgramService {
	return &ProgramService{db: db, log: log.Named("programs"), metrics: m, now: time.Now}
}

// ListPrograms returns the owner's active programs, newest first.
func (s *ProgramService) ListPrograms(ctx context.Context, q ListProgramsQuery, ownerID string) (*ProgramPage, error) {
	if err := requireActor(ownerID); err != nil {
		return nil, err
	}
	if err := validateStruct("invalid query parameters", q); err != nil {
		return nil, err
	}

	db := s.db.WithContext(ctx)
	var total int64
	if err := db.Model(&models.Program{}).Scopes(ownedActive(ownerID)).Count(&total).Error; err != nil {
		return nil, apperrors.Internal(err, "failed to count programs")
	}

	programs := make([]models.Program, 0, q.PageSize)
	// pages past the end are empty; this also keeps Page*PageSize from overflowing
	if total == 0 || int64(q.Page) > (total-1)/int64(q.PageSize) {
		return &ProgramPage{
			Programs:   programs,
			Pagination: models.NewPagination(q.Page, q.PageSize, total),
		}, nil
	}
	if err := db.Scopes(ownedActive(ownerID), withProgramRelations).
		Order("created_at DESC").Order("id DESC").
		Offset(q.Page * q.PageSize).Limit(q.PageSize).
		Find(&programs).Error; err != nil {
		return nil, apperrors.Internal(err, "failed to fetch programs")
	}

	return &ProgramPage{
		Programs:   programs,
		Pagination: models.NewPagination(q.Page, q.PageSize, total),
	}, nil
}

// GetProgram returns an active program owned by ownerID.
func (s *ProgramService) GetProgram(ctx context.Context, id, ownerID string) (*models.Program, error) {
	if err := requireActor(ownerID); err != nil {
		return nil, err
	}
	return loadProgram(s.db.WithContext(ctx), id, ownerID)
}

// CreateProgram inserts the program and its initial transfer ratios atomically.
func (s *ProgramService) CreateProgram(ctx context.Context, in CreateProgramInput, ownerID string) (*models.Program, error) {
	if err := requireActor(ownerID); err != nil {
		return nil, err
	}
	in.Name = cleanName(in.Name)
	in.AssetName = strings.TrimSpace(in.AssetName)
	if err := validateStruct("validation failed", in); err != nil {
		return nil, err
	}
	if err := validateDesiredRatios("transfer_ratios", in.TransferRatios); err != nil {
		return nil, err
	}
	if err := ensureCardsActive(ctx, s.db, "transfer_ratios", in.TransferRatios); err != nil {
		return nil, err
	}

	enabled := true
	if in.Enabled != nil {
		enabled = *in.Enabled
	}
	now := s.now()
	program := models.Program{
		ID:           uuid.NewString(),
		Name:         in.Name,
		Enabled:      enabled,
		State:        models.StateActive,
		AssetName:    in.AssetName,
		Version:      1,
		CreatedByID:  ownerID,
		ModifiedByID: ownerID,
		CreatedAt:    now,
		ModifiedAt:   now,
	}

	var out *models.Program
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("CreatedBy", "ModifiedBy", "TransferRatios").Create(&program).Error; err != nil {
			return err
		}
		for _, d := range in.TransferRatios {
			if err := upsertTransferRatio(tx, program.ID, d, ownerID, now); err != nil {
				return err
			}
		}
		var err error
		out, err = loadProgram(tx, program.ID, ownerID)
		return err
	})
	if err != nil {
		s.log.Error("create program failed", zap.String("owner_id", ownerID), zap.Error(err))
		return nil, asServiceError(err, "failed to create program")
	}

	s.metrics.ObserveReconcile(0, len(in.TransferRatios))
	s.log.Info("program created",
		zap.String("program_id", out.ID),
		zap.String("owner_id", ownerID),
		zap.Int("transfer_ratios", len(in.TransferRatios)))
	return out, nil
}

// UpdateProgram updates the program's fields and reconciles its transfer
// ratios in a single transaction. Ownership is checked before anything else so
// a foreign program yields NotFound whatever the payload.
func (s *ProgramService) UpdateProgram(ctx context.Context, id string, in UpdateProgramInput, ownerID string) (*models.Program, error) {
	if err := requireActor(ownerID); err != nil {
		return nil, err
	}
	if err := requireOwned(ctx, s.db, id, ownerID); err != nil {
		return nil, err
	}

	in.Name = cleanName(in.Name)
	in.AssetName = strings.TrimSpace(in.AssetName)
	if err := validateStruct("validation failed", in); err != nil {
		return nil, err
	}
	if err := validateDesiredRatios("transfer_ratios", in.TransferRatios); err != nil {
		return nil, err
	}
	if err := ensureCardsActive(ctx, s.db, "transfer_ratios", in.TransferRatios); err != nil {
		return nil, err
	}

	now := s.now()
	updates := map[string]any{
		"name":           in.Name,
		"enabled":        *in.Enabled,
		"modified_by_id": ownerID,
		"modified_at":    now,
		"version":        gorm.Expr("version + 1"),
	}
	if in.AssetName != "" {
		updates["asset_name"] = in.AssetName
	}

	var (
		out  *models.Program
		plan ReconcilePlan
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := casUpdateProgram(tx, id, ownerID, in.Version, updates); err != nil {
			return err
		}
		if in.TransferRatios != nil {
			var err error
			if plan, err = applyReconciliation(tx, id, in.TransferRatios, ownerID, now); err != nil {
				return err
			}
		}
		var err error
		out, err = loadProgram(tx, id, ownerID)
		return err
	})
	if err != nil {
		s.log.Error("update program failed", zap.String("program_id", id), zap.Error(err))
		return nil, asServiceError(err, "failed to update program")
	}

	s.metrics.ObserveReconcile(len(plan.ToArchive), len(plan.ToUpsert))
	s.log.Info("program updated",
		zap.String("program_id", id),
		zap.String("actor_id", ownerID),
		zap.Int("ratios_archived", len(plan.ToArchive)),
		zap.Int("ratios_upserted", len(plan.ToUpsert)),
		zap.Int("ratios_unchanged", plan.Unchanged))
	return out, nil
}

// ToggleEnabled flips the program's enabled flag.
func (s *ProgramService) ToggleEnabled(ctx context.Context, id string, enabled *bool, version *int64, ownerID string) (*models.Program, error) {
	if err := requireActor(ownerID); err != nil {
		return nil, err
	}
	if err := requireOwned(ctx, s.db, id, ownerID); err != nil {
		return nil, err
	}
	if enabled == nil {
		return nil, apperrors.Validation("validation failed", apperrors.Field("enabled", "is required"))
	}

	var out *models.Program
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := casUpdateProgram(tx, id, ownerID, version, map[string]any{
			"enabled":        *enabled,
			"modified_by_id": ownerID,
			"modified_at":    s.now(),
			"version":        gorm.Expr("version + 1"),
		}); err != nil {
			return err
		}
		var err error
		out, err = loadProgram(tx, id, ownerID)
		return err
	})
	if err != nil {
		return nil, asServiceError(err, "failed to toggle program")
	}
	s.log.Info("program toggled", zap.String("program_id", id), zap.Bool("enabled", *enabled))
	return out, nil
}

// DeleteProgram archives the program and every active transfer ratio it owns.
func (s *ProgramService) DeleteProgram(ctx context.Context, id, ownerID string) error {
	if err := requireActor(ownerID); err != nil {
		return err
	}
	if err := requireOwned(ctx, s.db, id, ownerID); err != nil {
		return err
	}

	now := s.now()
	var archived int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.TransferRatio{}).
			Where("program_id = ? AND state = ?", id, models.StateActive).
			Updates(map[string]any{
				"state":          models.StateArchived,
				"modified_by_id": ownerID,
				"modified_at":    now,
			})
		if res.Error != nil {
			return res.Error
		}
		archived = res.RowsAffected

		return casUpdateProgram(tx, id, ownerID, nil, map[string]any{
			"state":          models.StateArchived,
			"modified_by_id": ownerID,
			"modified_at":    now,
			"version":        gorm.Expr("version + 1"),
		})
	})
	if err != nil {
		s.log.Error("delete program failed", zap.String("program_id", id), zap.Error(err))
		return asServiceError(err, "failed to delete program")
	}

	s.metrics.ObserveReconcile(int(archived), 0)
	s.log.Info("program archived", zap.String("program_id", id), zap.Int64("ratios_archived", archived))
	return nil
}

// Stats summarizes the owner's active programs.
func (s *ProgramService) Stats(ctx context.Context, ownerID string) (*models.ProgramStats, error) {
	if err := requireActor(ownerID); err != nil {
		return nil, err
	}
	db := s.db.WithContext(ctx)

	var stats models.ProgramStats
	if err := db.Model(&models.Program{}).Scopes(ownedActive(ownerID)).Count(&stats.Total).Error; err != nil {
		return nil, apperrors.Internal(err, "failed to compute program stats")
	}
	if err := db.Model(&models.Program{}).Scopes(ownedActive(ownerID)).
		Where("enabled = ?", true).Count(&stats.Enabled).Error; err != nil {
		return nil, apperrors.Internal(err, "failed to compute program stats")
	}
	withRatios := db.Model(&models.TransferRatio{}).
		Select("program_id").
		Where("state = ?", models.StateActive)
	if err := db.Model(&models.Program{}).Scopes(ownedActive(ownerID)).
		Where("id IN (?)", withRatios).Count(&stats.WithTransferRatios).Error; err != nil {
		return nil, apperrors.Internal(err, "failed to compute program stats")
	}
	stats.Disabled = stats.Total - stats.Enabled
	return &stats, nil
}

// AssetHeldByOthers reports whether a program of another user, in any state,
// references the object key.
func (s *ProgramService) AssetHeldByOthers(ctx context.Context, key, ownerID string) (bool, error) {
	if err := requireActor(ownerID); err != nil {
		return false, err
	}
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Program{}).
		Where("asset_name = ? AND created_by_id <> ?", key, ownerID).
		Count(&count).Error; err != nil {
		return false, apperrors.Internal(err, "failed to check logo owner")
	}
	return count > 0, nil
}

// casUpdateProgram applies updates to an active owned program. When version is
// given the row must still carry it, otherwise the update fails with Conflict.
func casUpdateProgram(tx *gorm.DB, id, ownerID string, version *int64, updates map[string]any) error {
	q := tx.Model(&models.Program{}).Where("id = ?", id).Scopes(ownedActive(ownerID))
	if version != nil {
		q = q.Where("version = ?", *version)
	}
	res := q.Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		if version != nil {
			return apperrors.Conflict("program was modified by another request; reload and retry")
		}
		return apperrors.NotFound("program not found")
	}
	return nil
}

func ownedActive(ownerID string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("created_by_id = ? AND state = ?", ownerID, models.StateActive)
	}
}

func withProgramRelations(db *gorm.DB) *gorm.DB {
	return db.
		Preload("CreatedBy").
		Preload("ModifiedBy").
		Preload("TransferRatios", func(db *gorm.DB) *gorm.DB {
			return db.Where("state = ?", models.StateActive).Order("created_at ASC").Order("id ASC")
		}).
		Preload("TransferRatios.CreditCard")
}

func loadProgram(db *gorm.DB, id, ownerID string) (*models.Program, error) {
	if !validID(id) {
		return nil, apperrors.NotFound("program not found")
	}
	var p models.Program
	err := db.Scopes(ownedActive(ownerID), withProgramRelations).Where("id = ?", id).First(&p).Error
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, apperrors.NotFound("program not found")
		}
		return nil, err
	}
	return &p, nil
}

// requireOwned fails with NotFound unless id is an active program of ownerID.
func requireOwned(ctx context.Context, db *gorm.DB, id, ownerID string) error {
	if !validID(id) {
		return apperrors.NotFound("program not found")
	}
	var count int64
	if err := db.WithContext(ctx).Model(&models.Program{}).
		Where("id = ?", id).Scopes(ownedActive(ownerID)).
		Count(&count).Error; err != nil {
		return apperrors.Internal(err, "failed to load program")
	}
	if count == 0 {
		return apperrors.NotFound("program not found")
	}
	return nil
}

// ensureCardsActive rejects desired ratios that name an unknown or archived card.
func ensureCardsActive(ctx context.Context, db *gorm.DB, field string, desired []DesiredRatio) error {
	if len(desired) == 0 {
		return nil
	}
	ids := make([]string, len(desired))
	for i, d := range desired {
		ids[i] = d.CreditCardID
	}
	var found []string
	if err := db.WithContext(ctx).Model(&models.CreditCard{}).
		Where("id IN ? AND state = ?", ids, models.StateActive).
		Pluck("id", &found).Error; err != nil {
		return apperrors.Internal(err, "failed to load credit cards")
	}
	known := make(map[string]struct{}, len(found))
	for _, id := range found {
		known[id] = struct{}{}
	}
	var fields []goerrors.FieldError
	for i, d := range desired {
		if _, ok := known[d.CreditCardID]; !ok {
			fields = append(fields, apperrors.Field(
				fmt.Sprintf("%s[%d].credit_card_id", field, i), "credit card not found or archived"))
		}
	}
	if len(fields) > 0 {
		return apperrors.Validation("unknown credit cards", fields...)
	}
	return nil
}

// cleanName trims and NFC-normalizes a display name so visually identical
// names compare equal.
func cleanName(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}

// validID reports whether id is a canonical UUID. Anything else would be
// rejected by the uuid columns with a driver error.
func validID(id string) bool {
	return len(id) == 36 && uuid.Validate(id) == nil
}

func requireActor(actorID string) error {
	if strings.TrimSpace(actorID) == "" {
		return apperrors.Unauthorized("authentication required")
	}
	return nil
}

// asServiceError keeps taxonomy errors and turns everything else into Internal.
func asServiceError(err error, message string) error {
	if rich := apperrors.From(err); rich.Category != goerrors.CategoryInternal {
		return rich
	}
	return apperrors.Internal(err, message)
}
