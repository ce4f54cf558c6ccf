package services

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"ffp-admin/apperrors"
	"ffp-admin/models"
)

// DesiredRatio is one (credit card, ratio) pairing requested by a client.
type DesiredRatio struct {
	CreditCardID string  `json:"credit_card_id"`
	Ratio        float64 `json:"ratio"`
}

// UnmarshalJSON defaults an omitted ratio to models.DefaultTransferRatio.
func (d *DesiredRatio) UnmarshalJSON(b []byte) error {
	type plain DesiredRatio
	p := plain{Ratio: models.DefaultTransferRatio}
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*d = DesiredRatio(p)
	return nil
}

// ActiveRatio is the slice of a persisted active row the planner needs.
type ActiveRatio struct {
	ID           string
	CreditCardID string
	Ratio        float64
}

// ReconcilePlan lists the mutations that move a program's active ratio set
// onto the desired one.
type ReconcilePlan struct {
	ToArchive []string       // ids of active rows whose card is no longer desired
	ToUpsert  []DesiredRatio // new pairings, reactivations and ratio changes
	Unchanged int            // desired pairings already active with the same ratio
}

// Empty reports whether applying the plan would change nothing.
func (p ReconcilePlan) Empty() bool {
	return len(p.ToArchive) == 0 && len(p.ToUpsert) == 0
}

// PlanReconciliation diffs the current active set against the desired set.
// Desired entries are expected to be validated (unique, non-empty card ids).
func PlanReconciliation(current []ActiveRatio, desired []DesiredRatio) ReconcilePlan {
	wanted := make(map[string]struct{}, len(desired))
	for _, d := range desired {
		wanted[d.CreditCardID] = struct{}{}
	}

	active := make(map[string]float64, len(current))
	var plan ReconcilePlan
	for _, row := range current {
		active[row.CreditCardID] = row.Ratio
		if _, ok := wanted[row.CreditCardID]; !ok {
			plan.ToArchive = append(plan.ToArchive, row.ID)
		}
	}

	for _, d := range desired {
		if ratio, ok := active[d.CreditCardID]; ok && ratio == d.Ratio {
			plan.Unchanged++
			continue
		}
		plan.ToUpsert = append(plan.ToUpsert, d)
	}
	return plan
}

// validateDesiredRatios rejects the inputs the planner must never see: empty
// or duplicated card ids and ratios outside the allowed bounds.
func validateDesiredRatios(field string, desired []DesiredRatio) error {
	var fields []goerrors.FieldError
	seen := make(map[string]int, len(desired))
	for i := range desired {
		d := &desired[i]
		d.CreditCardID = strings.TrimSpace(d.CreditCardID)
		prefix := fmt.Sprintf("%s[%d]", field, i)

		if d.CreditCardID == "" {
			fields = append(fields, apperrors.Field(prefix+".credit_card_id", "is required"))
		} else if !validID(d.CreditCardID) {
			fields = append(fields, apperrors.Field(prefix+".credit_card_id", "must be a valid id"))
		} else if first, dup := seen[d.CreditCardID]; dup {
			fields = append(fields, apperrors.Field(prefix+".credit_card_id",
				fmt.Sprintf("duplicates %s[%d]", field, first)))
		} else {
			seen[d.CreditCardID] = i
		}

		if !models.RatioInBounds(d.Ratio) {
			fields = append(fields, ratioBoundsField(prefix+".ratio"))
		}
	}
	if len(fields) > 0 {
		return apperrors.Validation("invalid transfer ratios", fields...)
	}
	return nil
}

func ratioBoundsField(field string) goerrors.FieldError {
	return apperrors.Field(field,
		fmt.Sprintf("must be between %.1f and %.1f", models.MinTransferRatio, models.MaxTransferRatio))
}

// applyReconciliation runs load, bulk archive and upserts inside tx.
func applyReconciliation(tx *gorm.DB, programID string, desired []DesiredRatio, actorID string, now time.Time) (ReconcilePlan, error) {
	var rows []models.TransferRatio
	if err := tx.Select("id", "credit_card_id", "ratio").
		Where("program_id = ? AND state = ?", programID, models.StateActive).
		Find(&rows).Error; err != nil {
		return ReconcilePlan{}, fmt.Errorf("load active transfer ratios: %w", err)
	}

	current := make([]ActiveRatio, len(rows))
	for i, r := range rows {
		current[i] = ActiveRatio{ID: r.ID, CreditCardID: r.CreditCardID, Ratio: r.Ratio}
	}
	plan := PlanReconciliation(current, desired)

	if len(plan.ToArchive) > 0 {
		if err := tx.Model(&models.TransferRatio{}).
			Where("id IN ?", plan.ToArchive).
			Updates(map[string]any{
				"state":          models.StateArchived,
				"modified_by_id": actorID,
				"modified_at":    now,
			}).Error; err != nil {
			return plan, fmt.Errorf("archive transfer ratios: %w", err)
		}
	}

	for _, d := range plan.ToUpsert {
		if err := upsertTransferRatio(tx, programID, d, actorID, now); err != nil {
			return plan, err
		}
	}
	return plan, nil
}

// upsertTransferRatio inserts the pairing or, when a row already exists for
// the natural key, replaces its ratio and forces it active.
func upsertTransferRatio(tx *gorm.DB, programID string, d DesiredRatio, actorID string, now time.Time) error {
	row := models.TransferRatio{
		ID:           uuid.NewString(),
		ProgramID:    programID,
		CreditCardID: d.CreditCardID,
		Ratio:        d.Ratio,
		State:        models.StateActive,
		CreatedByID:  actorID,
		ModifiedByID: actorID,
		CreatedAt:    now,
		ModifiedAt:   now,
	}
	err := tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "program_id"}, {Name: "credit_card_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"ratio", "state", "modified_by_id", "modified_at",
		}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("upsert transfer ratio (program=%s, card=%s): %w", programID, d.CreditCardID, err)
	}
	return nil
}
