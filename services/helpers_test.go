package services

import (
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"ffp-admin/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Discard,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, models.AutoMigrate(db))
	return db
}

func createUser(t *testing.T, db *gorm.DB, email string) *models.User {
	t.Helper()
	u := models.User{ID: uuid.NewString(), Email: email, PasswordHash: "x"}
	require.NoError(t, db.Create(&u).Error)
	return &u
}

func createCard(t *testing.T, db *gorm.DB, name string) *models.CreditCard {
	t.Helper()
	c := models.CreditCard{ID: uuid.NewString(), Name: name, BankName: "Test Bank", State: models.StateActive}
	require.NoError(t, db.Create(&c).Error)
	return &c
}

// activeSet maps credit card id to ratio for the program's active rows.
func activeSet(t *testing.T, db *gorm.DB, programID string) map[string]float64 {
	t.Helper()
	var rows []models.TransferRatio
	require.NoError(t, db.Where("program_id = ? AND state = ?", programID, models.StateActive).Find(&rows).Error)
	out := make(map[string]float64, len(rows))
	for _, r := range rows {
		out[r.CreditCardID] = r.Ratio
	}
	return out
}

func newProgramService(db *gorm.DB) *ProgramService {
	return NewProgramService(db, zap.NewNop(), nil)
}

func boolPtr(b bool) *bool { return &b }

func int64Ptr(v int64) *int64 { return &v }

// fixedClock returns increasing instants so ordering by created_at is stable.
func fixedClock() func() time.Time {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	n := 0
	return func() time.Time {
		n++
		return base.Add(time.Duration(n) * time.Second)
	}
}
