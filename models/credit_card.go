package models

import "time"

// CreditCard is a partner card. Programs reference cards but never modify them.
type CreditCard struct {
	ID       string         `json:"id" gorm:"primaryKey;type:uuid"`
	Name     string         `json:"name" gorm:"not null;uniqueIndex:idx_credit_card_bank_name"`
	BankName string         `json:"bank_name" gorm:"not null;uniqueIndex:idx_credit_card_bank_name"`
	State    LifecycleState `json:"state" gorm:"size:16;not null;index"`

	TransferRatios []TransferRatio `json:"transfer_ratios,omitempty" gorm:"foreignKey:CreditCardID"`

	CreatedAt  time.Time `json:"created_at"`
	ModifiedAt time.Time `json:"modified_at" gorm:"autoUpdateTime"`
}
