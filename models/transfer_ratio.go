package models

import "time"

const (
	MinTransferRatio = 0.1
	MaxTransferRatio = 5.0

	// DefaultTransferRatio applies when a client omits the ratio.
	DefaultTransferRatio = 1.0
)

// TransferRatio links a program to a credit card. (ProgramID, CreditCardID) is
// the natural key: one row per pairing, flipped between active and archived
// instead of being deleted.
type TransferRatio struct {
	ID           string         `json:"id" gorm:"primaryKey;type:uuid"`
	ProgramID    string         `json:"program_id" gorm:"type:uuid;not null;uniqueIndex:idx_transfer_ratio_pair"`
	CreditCardID string         `json:"credit_card_id" gorm:"type:uuid;not null;uniqueIndex:idx_transfer_ratio_pair;index"`
	Ratio        float64        `json:"ratio" gorm:"not null"`
	State        LifecycleState `json:"state" gorm:"size:16;not null;index"`

	CreditCard *CreditCard `json:"credit_card,omitempty" gorm:"foreignKey:CreditCardID"`
	Program    *Program    `json:"program,omitempty" gorm:"foreignKey:ProgramID"`

	CreatedByID  string    `json:"created_by_id" gorm:"type:uuid;not null"`
	ModifiedByID string    `json:"modified_by_id" gorm:"type:uuid;not null"`
	CreatedAt    time.Time `json:"created_at"`
	ModifiedAt   time.Time `json:"modified_at" gorm:"autoUpdateTime"`
}

// RatioInBounds reports whether r lies within [MinTransferRatio, MaxTransferRatio].
func RatioInBounds(r float64) bool {
	return r >= MinTransferRatio && r <= MaxTransferRatio
}
