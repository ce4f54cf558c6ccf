package services

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"ffp-admin/apperrors"
	"ffp-admin/metrics"
	"ffp-admin/models"
)

// CreateTransferRatioInput pairs one card with a program. Posting an existing
// pairing replaces its ratio and reactivates it.
type CreateTransferRatioInput struct {
	ProgramID    string  `json:"program_id" validate:"required,uuid"`
	CreditCardID string  `json:"credit_card_id" validate:"required,uuid"`
	Ratio        float64 `json:"ratio"` // defaults to 1 when omitted
}

func (in *CreateTransferRatioInput) UnmarshalJSON(b []byte) error {
	type plain CreateTransferRatioInput
	p := plain{Ratio: models.DefaultTransferRatio}
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*in = CreateTransferRatioInput(p)
	return nil
}

// UpdateTransferRatioInput changes a ratio value and/or its lifecycle state.
type UpdateTransferRatioInput struct {
	Ratio    *float64 `json:"ratio"`
	Archived *bool    `json:"archived"`
}

type TransferRatioService struct {
	db      *gorm.DB
	log     *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewTransferRatioService(db *gorm.DB, log *zap.Logger, m *metrics.Metrics) *TransferRatioService {
	return &TransferRatioService{db: db, log: log.Named("transfer_ratios"), metrics: m, now: time.Now}
}

// Get returns a ratio, archived or not, whose program the owner still holds.
func (s *TransferRatioService) Get(ctx context.Context, id, ownerID string) (*models.TransferRatio, error) {
	if err := requireActor(ownerID); err != nil {
		return nil, err
	}
	return loadOwnedRatio(s.db.WithContext(ctx), id, ownerID)
}

func (s *TransferRatioService) Create(ctx context.Context, in CreateTransferRatioInput, ownerID string) (*models.TransferRatio, error) {
	if err := requireActor(ownerID); err != nil {
		return nil, err
	}
	in.ProgramID = strings.TrimSpace(in.ProgramID)
	in.CreditCardID = strings.TrimSpace(in.CreditCardID)
	if err := validateStruct("validation failed", in); err != nil {
		return nil, err
	}
	if err := requireOwned(ctx, s.db, in.ProgramID, ownerID); err != nil {
		return nil, err
	}

	desired := []DesiredRatio{{CreditCardID: in.CreditCardID, Ratio: in.Ratio}}
	if err := validateDesiredRatios("transfer_ratio", desired); err != nil {
		return nil, err
	}
	if err := ensureCardsActive(ctx, s.db, "transfer_ratio", desired); err != nil {
		return nil, err
	}

	var out *models.TransferRatio
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := upsertTransferRatio(tx, in.ProgramID, desired[0], ownerID, s.now()); err != nil {
			return err
		}
		var row models.TransferRatio
		if err := tx.Where("program_id = ? AND credit_card_id = ?", in.ProgramID, desired[0].CreditCardID).
			First(&row).Error; err != nil {
			return err
		}
		var err error
		out, err = loadOwnedRatio(tx, row.ID, ownerID)
		return err
	})
	if err != nil {
		return nil, asServiceError(err, "failed to create transfer ratio")
	}

	s.metrics.ObserveReconcile(0, 1)
	s.log.Info("transfer ratio upserted",
		zap.String("transfer_ratio_id", out.ID),
		zap.String("program_id", out.ProgramID),
		zap.String("credit_card_id", out.CreditCardID))
	return out, nil
}

func (s *TransferRatioService) Update(ctx context.Context, id string, in UpdateTransferRatioInput, ownerID string) (*models.TransferRatio, error) {
	if err := requireActor(ownerID); err != nil {
		return nil, err
	}
	current, err := loadOwnedRatio(s.db.WithContext(ctx), id, ownerID)
	if err != nil {
		return nil, err
	}

	if in.Ratio == nil && in.Archived == nil {
		return nil, apperrors.Validation("at least one of ratio or archived is required")
	}
	updates := map[string]any{
		"modified_by_id": ownerID,
		"modified_at":    s.now(),
	}
	if in.Ratio != nil {
		if !models.RatioInBounds(*in.Ratio) {
			return nil, apperrors.Validation("validation failed", ratioBoundsField("ratio"))
		}
		updates["ratio"] = *in.Ratio
	}
	if in.Archived != nil {
		next := models.StateActive
		if *in.Archived {
			next = models.StateArchived
		}
		if next == models.StateActive && current.CreditCard != nil && current.CreditCard.State.IsArchived() {
			return nil, apperrors.Validation("validation failed",
				apperrors.Field("archived", "credit card is archived"))
		}
		updates["state"] = next
	}

	var out *models.TransferRatio
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.TransferRatio{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			return err
		}
		var err error
		out, err = loadOwnedRatio(tx, id, ownerID)
		return err
	})
	if err != nil {
		return nil, asServiceError(err, "failed to update transfer ratio")
	}
	s.log.Info("transfer ratio updated", zap.String("transfer_ratio_id", id), zap.String("state", string(out.State)))
	return out, nil
}

// Archive marks the ratio archived. Archiving an archived ratio is a no-op.
func (s *TransferRatioService) Archive(ctx context.Context, id, ownerID string) error {
	if err := requireActor(ownerID); err != nil {
		return err
	}
	current, err := loadOwnedRatio(s.db.WithContext(ctx), id, ownerID)
	if err != nil {
		return err
	}
	if current.State.IsArchived() {
		return nil
	}

	if err := s.db.WithContext(ctx).Model(&models.TransferRatio{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"state":          models.StateArchived,
			"modified_by_id": ownerID,
			"modified_at":    s.now(),
		}).Error; err != nil {
		return apperrors.Internal(err, "failed to archive transfer ratio")
	}
	s.metrics.ObserveReconcile(1, 0)
	s.log.Info("transfer ratio archived", zap.String("transfer_ratio_id", id))
	return nil
}

// loadOwnedRatio finds a ratio through an active program owned by ownerID.
func loadOwnedRatio(db *gorm.DB, id, ownerID string) (*models.TransferRatio, error) {
	if !validID(id) {
		return nil, apperrors.NotFound("transfer ratio not found")
	}
	var row models.TransferRatio
	err := db.
		Select("transfer_ratios.*").
		Joins("JOIN programs ON programs.id = transfer_ratios.program_id").
		Where("transfer_ratios.id = ?", id).
		Where("programs.created_by_id = ? AND programs.state = ?", ownerID, models.StateActive).
		Preload("CreditCard").
		Preload("Program").
		First(&row).Error
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, apperrors.NotFound("transfer ratio not found")
		}
		return nil, apperrors.Internal(err, "failed to load transfer ratio")
	}
	return &row, nil
}
