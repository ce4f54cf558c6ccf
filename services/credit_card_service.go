package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"ffp-admin/apperrors"
	"ffp-admin/metrics"
	"ffp-admin/models"
)

// CreditCardService serves the read-only card catalogue to the admin UI and
// the archive paths used by the CLI and the sweep job.
type CreditCardService struct {
	db      *gorm.DB
	log     *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewCreditCardService(db *gorm.DB, log *zap.Logger, m *metrics.Metrics) *CreditCardService {
	return &CreditCardService{db: db, log: log.Named("credit_cards"), metrics: m, now: time.Now}
}

// List returns active cards ordered by bank then name. With includeRatios each
// card carries its active ratios on the owner's active programs.
func (s *CreditCardService) List(ctx context.Context, ownerID string, includeRatios bool) ([]models.CreditCard, error) {
	if err := requireActor(ownerID); err != nil {
		return nil, err
	}

	q := s.db.WithContext(ctx).
		Where("state = ?", models.StateActive).
		Order("bank_name ASC").Order("name ASC")
	if includeRatios {
		q = q.Preload("TransferRatios", func(db *gorm.DB) *gorm.DB {
			return db.Select("transfer_ratios.*").
				Joins("JOIN programs ON programs.id = transfer_ratios.program_id").
				Where("transfer_ratios.state = ?", models.StateActive).
				Where("programs.created_by_id = ? AND programs.state = ?", ownerID, models.StateActive).
				Order("transfer_ratios.created_at ASC")
		}).Preload("TransferRatios.Program")
	}

	cards := make([]models.CreditCard, 0)
	if err := q.Find(&cards).Error; err != nil {
		return nil, apperrors.Internal(err, "failed to fetch credit cards")
	}
	return cards, nil
}

// Archive archives a card and every active ratio that references it. It
// returns the number of ratios archived.
func (s *CreditCardService) Archive(ctx context.Context, id string) (int64, error) {
	if !validID(id) {
		return 0, apperrors.NotFound("credit card not found")
	}
	now := s.now()
	var archived int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.CreditCard{}).
			Where("id = ? AND state = ?", id, models.StateActive).
			Updates(map[string]any{"state": models.StateArchived, "modified_at": now})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperrors.NotFound("credit card not found")
		}

		res = tx.Model(&models.TransferRatio{}).
			Where("credit_card_id = ? AND state = ?", id, models.StateActive).
			Updates(map[string]any{"state": models.StateArchived, "modified_at": now})
		archived = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return 0, asServiceError(err, "failed to archive credit card")
	}
	s.metrics.ObserveSweep(archived)
	s.log.Info("credit card archived", zap.String("credit_card_id", id), zap.Int64("ratios_archived", archived))
	return archived, nil
}

// SweepArchivedCards archives active ratios left pointing at archived cards.
func (s *CreditCardService) SweepArchivedCards(ctx context.Context) (int64, error) {
	archivedCards := s.db.Model(&models.CreditCard{}).
		Select("id").
		Where("state = ?", models.StateArchived)

	res := s.db.WithContext(ctx).Model(&models.TransferRatio{}).
		Where("state = ? AND credit_card_id IN (?)", models.StateActive, archivedCards).
		Updates(map[string]any{"state": models.StateArchived, "modified_at": s.now()})
	if res.Error != nil {
		return 0, apperrors.Internal(res.Error, "failed to sweep transfer ratios")
	}
	s.metrics.ObserveSweep(res.RowsAffected)
	if res.RowsAffected > 0 {
		s.log.Info("swept orphaned transfer ratios", zap.Int64("archived", res.RowsAffected))
	}
	return res.RowsAffected, nil
}

// Seed inserts the given cards, skipping pairs of (name, bank) that exist.
// It returns the number of cards inserted.
func (s *CreditCardService) Seed(ctx context.Context, cards []models.SeedCard) (int64, error) {
	if len(cards) == 0 {
		return 0, nil
	}
	now := s.now()
	rows := make([]models.CreditCard, len(cards))
	for i, c := range cards {
		rows[i] = models.CreditCard{
			ID:         uuid.NewString(),
			Name:       c.Name,
			BankName:   c.BankName,
			State:      models.StateActive,
			CreatedAt:  now,
			ModifiedAt: now,
		}
	}
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}, {Name: "bank_name"}},
			DoNothing: true,
		}).
		Create(&rows)
	if res.Error != nil {
		return 0, apperrors.Internal(res.Error, "failed to seed credit cards")
	}
	s.log.Info("credit cards seeded", zap.Int64("inserted", res.RowsAffected), zap.Int("requested", len(cards)))
	return res.RowsAffected, nil
}
