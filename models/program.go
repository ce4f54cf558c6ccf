// models/program.go
package models

import "time"

// Program is a frequent-flyer loyalty program owned by the user who created it.
type Program struct {
	ID        string         `json:"id" gorm:"primaryKey;type:uuid"`
	Name      string         `json:"name" gorm:"size:100;not null"`
	Enabled   bool           `json:"enabled" gorm:"not null"`
	State     LifecycleState `json:"state" gorm:"size:16;not null;index"`
	AssetName string         `json:"asset_name,omitempty"` // R2 object key of the logo

	// Bumped on every mutation; callers may send it back for a compare-and-swap update.
	Version int64 `json:"version" gorm:"not null"`

	CreatedByID  string `json:"-" gorm:"type:uuid;index;not null"` // owner
	ModifiedByID string `json:"-" gorm:"type:uuid;not null"`
	CreatedBy    *User  `json:"created_by,omitempty" gorm:"foreignKey:CreatedByID"`
	ModifiedBy   *User  `json:"modified_by,omitempty" gorm:"foreignKey:ModifiedByID"`

	TransferRatios []TransferRatio `json:"transfer_ratios" gorm:"foreignKey:ProgramID"`

	// Presigned logo URL, filled per request by the HTTP layer.
	ImageURL string `json:"image_url,omitempty" gorm:"-"`

	CreatedAt  time.Time `json:"created_at" gorm:"index"`
	ModifiedAt time.Time `json:"modified_at" gorm:"autoUpdateTime"`
}

// ProgramStats summarizes an owner's active programs.
type ProgramStats struct {
	Total              int64 `json:"total"`
	Enabled            int64 `json:"enabled"`
	Disabled           int64 `json:"disabled"`
	WithTransferRatios int64 `json:"with_transfer_ratios"`
}

// Pagination is returned alongside every paged listing.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
}

func NewPagination(page, pageSize int, total int64) Pagination {
	totalPages := 0
	if pageSize > 0 {
		totalPages = int((total + int64(pageSize) - 1) / int64(pageSize))
	}
	return Pagination{Page: page, PageSize: pageSize, Total: total, TotalPages: totalPages}
}
