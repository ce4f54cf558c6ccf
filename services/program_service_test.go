package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"ffp-admin/apperrors"
	"ffp-admin/models"
)

type programFixture struct {
	db    *gorm.DB
	svc   *ProgramService
	owner *models.User
	other *models.User
	cardA *models.CreditCard
	cardB *models.CreditCard
	cardC *models.CreditCard
	ctx   context.Context
}

func newProgramFixture(t *testing.T) *programFixture {
	t.Helper()
	db := setupTestDB(t)
	svc := newProgramService(db)
	svc.now = fixedClock()
	return &programFixture{
		db:    db,
		svc:   svc,
		owner: createUser(t, db, "owner@example.com"),
		other: createUser(t, db, "other@example.com"),
		cardA: createCard(t, db, "Card A"),
		cardB: createCard(t, db, "Card B"),
		cardC: createCard(t, db, "Card C"),
		ctx:   context.Background(),
	}
}

func (f *programFixture) create(t *testing.T, name string, ratios ...DesiredRatio) *models.Program {
	t.Helper()
	p, err := f.svc.CreateProgram(f.ctx, CreateProgramInput{Name: name, TransferRatios: ratios}, f.owner.ID)
	require.NoError(t, err)
	return p
}

func (f *programFixture) update(name string, ratios []DesiredRatio) UpdateProgramInput {
	return UpdateProgramInput{Name: name, Enabled: boolPtr(true), TransferRatios: ratios}
}

func TestCreateProgram(t *testing.T) {
	f := newProgramFixture(t)

	p, err := f.svc.CreateProgram(f.ctx, CreateProgramInput{
		Name:      "  Flying Blue ",
		AssetName: "logos/flying-blue.png",
		TransferRatios: []DesiredRatio{
			{CreditCardID: f.cardA.ID, Ratio: 1.0},
			{CreditCardID: f.cardB.ID, Ratio: 2.5},
		},
	}, f.owner.ID)
	require.NoError(t, err)

	assert.Equal(t, "Flying Blue", p.Name)
	assert.True(t, p.Enabled, "enabled defaults to true")
	assert.Equal(t, models.StateActive, p.State)
	assert.Equal(t, int64(1), p.Version)
	require.NotNil(t, p.CreatedBy)
	assert.Equal(t, f.owner.Email, p.CreatedBy.Email)
	require.Len(t, p.TransferRatios, 2)
	var cards []string
	for _, r := range p.TransferRatios {
		require.NotNil(t, r.CreditCard)
		cards = append(cards, r.CreditCard.Name)
	}
	assert.ElementsMatch(t, []string{"Card A", "Card B"}, cards)
}

func TestCreateProgramDisabled(t *testing.T) {
	f := newProgramFixture(t)

	p, err := f.svc.CreateProgram(f.ctx, CreateProgramInput{Name: "Avios", Enabled: boolPtr(false)}, f.owner.ID)
	require.NoError(t, err)
	assert.False(t, p.Enabled)
}

func TestCreateProgramValidation(t *testing.T) {
	f := newProgramFixture(t)

	_, err := f.svc.CreateProgram(f.ctx, CreateProgramInput{Name: ""}, f.owner.ID)
	assert.True(t, apperrors.IsValidation(err))

	_, err = f.svc.CreateProgram(f.ctx, CreateProgramInput{
		Name:           "KrisFlyer",
		TransferRatios: []DesiredRatio{{CreditCardID: "does-not-exist", Ratio: 1}},
	}, f.owner.ID)
	assert.True(t, apperrors.IsValidation(err))

	var count int64
	require.NoError(t, f.db.Model(&models.Program{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestCreateProgramRequiresActor(t *testing.T) {
	f := newProgramFixture(t)

	_, err := f.svc.CreateProgram(f.ctx, CreateProgramInput{Name: "Aeroplan"}, "")
	assert.True(t, apperrors.IsUnauthorized(err))
}

func TestUpdateProgramReconcilesRatios(t *testing.T) {
	f := newProgramFixture(t)
	p := f.create(t, "Flying Blue",
		DesiredRatio{CreditCardID: f.cardA.ID, Ratio: 1.0},
		DesiredRatio{CreditCardID: f.cardB.ID, Ratio: 2.0},
	)

	var rowB models.TransferRatio
	require.NoError(t, f.db.Where("program_id = ? AND credit_card_id = ?", p.ID, f.cardB.ID).First(&rowB).Error)

	updated, err := f.svc.UpdateProgram(f.ctx, p.ID, f.update("Flying Blue", []DesiredRatio{
		{CreditCardID: f.cardB.ID, Ratio: 3.0},
		{CreditCardID: f.cardC.ID, Ratio: 1.5},
	}), f.owner.ID)
	require.NoError(t, err)

	assert.Equal(t, map[string]float64{f.cardB.ID: 3.0, f.cardC.ID: 1.5}, activeSet(t, f.db, p.ID))
	assert.Len(t, updated.TransferRatios, 2)
	assert.Equal(t, int64(2), updated.Version)

	var rowA models.TransferRatio
	require.NoError(t, f.db.Where("program_id = ? AND credit_card_id = ?", p.ID, f.cardA.ID).First(&rowA).Error)
	assert.Equal(t, models.StateArchived, rowA.State)

	var rowBAfter models.TransferRatio
	require.NoError(t, f.db.First(&rowBAfter, "id = ?", rowB.ID).Error)
	assert.Equal(t, 3.0, rowBAfter.Ratio, "existing row is updated in place")
	assert.Equal(t, models.StateActive, rowBAfter.State)
}

func TestUpdateProgramIsIdempotent(t *testing.T) {
	f := newProgramFixture(t)
	p := f.create(t, "Avios")
	desired := []DesiredRatio{
		{CreditCardID: f.cardA.ID, Ratio: 1.0},
		{CreditCardID: f.cardB.ID, Ratio: 2.0},
	}

	_, err := f.svc.UpdateProgram(f.ctx, p.ID, f.update("Avios", desired), f.owner.ID)
	require.NoError(t, err)
	first := activeSet(t, f.db, p.ID)

	_, err = f.svc.UpdateProgram(f.ctx, p.ID, f.update("Avios", desired), f.owner.ID)
	require.NoError(t, err)

	assert.Equal(t, first, activeSet(t, f.db, p.ID))
	var rows int64
	require.NoError(t, f.db.Model(&models.TransferRatio{}).Where("program_id = ?", p.ID).Count(&rows).Error)
	assert.Equal(t, int64(2), rows)
}

func TestUpdateProgramReactivatesArchivedPairing(t *testing.T) {
	f := newProgramFixture(t)
	p := f.create(t, "KrisFlyer", DesiredRatio{CreditCardID: f.cardA.ID, Ratio: 1.0})

	_, err := f.svc.UpdateProgram(f.ctx, p.ID, f.update("KrisFlyer", []DesiredRatio{}), f.owner.ID)
	require.NoError(t, err)
	assert.Empty(t, activeSet(t, f.db, p.ID))

	_, err = f.svc.UpdateProgram(f.ctx, p.ID, f.update("KrisFlyer", []DesiredRatio{
		{CreditCardID: f.cardA.ID, Ratio: 4.0},
	}), f.owner.ID)
	require.NoError(t, err)

	assert.Equal(t, map[string]float64{f.cardA.ID: 4.0}, activeSet(t, f.db, p.ID))
	var rows []models.TransferRatio
	require.NoError(t, f.db.Where("program_id = ? AND credit_card_id = ?", p.ID, f.cardA.ID).Find(&rows).Error)
	require.Len(t, rows, 1, "one row per pairing, never deleted")
	assert.Equal(t, models.StateActive, rows[0].State)
}

func TestUpdateProgramNilRatiosLeavesSetAlone(t *testing.T) {
	f := newProgramFixture(t)
	p := f.create(t, "Aeroplan", DesiredRatio{CreditCardID: f.cardA.ID, Ratio: 1.0})

	updated, err := f.svc.UpdateProgram(f.ctx, p.ID, UpdateProgramInput{
		Name:    "Aeroplan Plus",
		Enabled: boolPtr(false),
	}, f.owner.ID)
	require.NoError(t, err)

	assert.Equal(t, "Aeroplan Plus", updated.Name)
	assert.False(t, updated.Enabled)
	assert.Equal(t, map[string]float64{f.cardA.ID: 1.0}, activeSet(t, f.db, p.ID))
}

func TestUpdateProgramKeepsAssetWhenBlank(t *testing.T) {
	f := newProgramFixture(t)
	p, err := f.svc.CreateProgram(f.ctx, CreateProgramInput{Name: "Miles", AssetName: "logos/miles.png"}, f.owner.ID)
	require.NoError(t, err)

	updated, err := f.svc.UpdateProgram(f.ctx, p.ID, f.update("Miles", nil), f.owner.ID)
	require.NoError(t, err)
	assert.Equal(t, "logos/miles.png", updated.AssetName)
}

func TestUpdateProgramAtomicity(t *testing.T) {
	f := newProgramFixture(t)
	p := f.create(t, "Flying Blue",
		DesiredRatio{CreditCardID: f.cardA.ID, Ratio: 1.0},
		DesiredRatio{CreditCardID: f.cardB.ID, Ratio: 2.0},
	)
	before := activeSet(t, f.db, p.ID)

	failOn := f.cardC.ID
	require.NoError(t, f.db.Callback().Create().Before("gorm:create").Register("test:fail_card", func(tx *gorm.DB) {
		if row, ok := tx.Statement.Dest.(*models.TransferRatio); ok && row.CreditCardID == failOn {
			_ = tx.AddError(errors.New("constraint violation"))
		}
	}))

	_, err := f.svc.UpdateProgram(f.ctx, p.ID, f.update("Renamed", []DesiredRatio{
		{CreditCardID: f.cardB.ID, Ratio: 3.0},
		{CreditCardID: f.cardC.ID, Ratio: 1.5},
	}), f.owner.ID)
	require.Error(t, err)
	assert.Equal(t, 500, apperrors.Status(err))

	assert.Equal(t, before, activeSet(t, f.db, p.ID))
	var reloaded models.Program
	require.NoError(t, f.db.First(&reloaded, "id = ?", p.ID).Error)
	assert.Equal(t, "Flying Blue", reloaded.Name)
	assert.Equal(t, int64(1), reloaded.Version)
}

func TestUpdateProgramRejectsOutOfBoundsRatio(t *testing.T) {
	f := newProgramFixture(t)
	p := f.create(t, "Avios", DesiredRatio{CreditCardID: f.cardA.ID, Ratio: 1.0})

	_, err := f.svc.UpdateProgram(f.ctx, p.ID, f.update("Avios", []DesiredRatio{
		{CreditCardID: f.cardA.ID, Ratio: 0.05},
	}), f.owner.ID)
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
	assert.Equal(t, map[string]float64{f.cardA.ID: 1.0}, activeSet(t, f.db, p.ID))
}

func TestUpdateProgramRejectsDuplicatesAndEmptyIDs(t *testing.T) {
	f := newProgramFixture(t)
	p := f.create(t, "Avios")

	_, err := f.svc.UpdateProgram(f.ctx, p.ID, f.update("Avios", []DesiredRatio{
		{CreditCardID: f.cardA.ID, Ratio: 1.0},
		{CreditCardID: f.cardA.ID, Ratio: 2.0},
	}), f.owner.ID)
	assert.True(t, apperrors.IsValidation(err))

	_, err = f.svc.UpdateProgram(f.ctx, p.ID, f.update("Avios", []DesiredRatio{
		{CreditCardID: "", Ratio: 1.0},
	}), f.owner.ID)
	assert.True(t, apperrors.IsValidation(err))
}

func TestUpdateProgramRejectsArchivedCard(t *testing.T) {
	f := newProgramFixture(t)
	p := f.create(t, "Avios")
	require.NoError(t, f.db.Model(f.cardA).Update("state", models.StateArchived).Error)

	_, err := f.svc.UpdateProgram(f.ctx, p.ID, f.update("Avios", []DesiredRatio{
		{CreditCardID: f.cardA.ID, Ratio: 1.0},
	}), f.owner.ID)
	assert.True(t, apperrors.IsValidation(err))
}

func TestUpdateProgramForeignOwnerIsNotFound(t *testing.T) {
	f := newProgramFixture(t)
	p := f.create(t, "Avios", DesiredRatio{CreditCardID: f.cardA.ID, Ratio: 1.0})

	_, err := f.svc.UpdateProgram(f.ctx, p.ID, f.update("Stolen", []DesiredRatio{
		{CreditCardID: f.cardB.ID, Ratio: 2.0},
	}), f.other.ID)
	assert.True(t, apperrors.IsNotFound(err))

	// an invalid payload still yields NotFound
	_, err = f.svc.UpdateProgram(f.ctx, p.ID, UpdateProgramInput{
		TransferRatios: []DesiredRatio{{CreditCardID: f.cardB.ID, Ratio: 0.05}},
	}, f.other.ID)
	assert.True(t, apperrors.IsNotFound(err))

	assert.Equal(t, map[string]float64{f.cardA.ID: 1.0}, activeSet(t, f.db, p.ID))
}

func TestUpdateProgramVersionConflict(t *testing.T) {
	f := newProgramFixture(t)
	p := f.create(t, "Avios")

	in := f.update("Avios v2", nil)
	in.Version = int64Ptr(p.Version)
	updated, err := f.svc.UpdateProgram(f.ctx, p.ID, in, f.owner.ID)
	require.NoError(t, err)
	assert.Equal(t, p.Version+1, updated.Version)

	stale := f.update("Avios v3", []DesiredRatio{{CreditCardID: f.cardA.ID, Ratio: 1.0}})
	stale.Version = int64Ptr(p.Version)
	_, err = f.svc.UpdateProgram(f.ctx, p.ID, stale, f.owner.ID)
	assert.True(t, apperrors.IsConflict(err))
	assert.Empty(t, activeSet(t, f.db, p.ID))
}

func TestToggleEnabled(t *testing.T) {
	f := newProgramFixture(t)
	p := f.create(t, "Avios")

	toggled, err := f.svc.ToggleEnabled(f.ctx, p.ID, boolPtr(false), nil, f.owner.ID)
	require.NoError(t, err)
	assert.False(t, toggled.Enabled)
	assert.Equal(t, int64(2), toggled.Version)

	_, err = f.svc.ToggleEnabled(f.ctx, p.ID, boolPtr(true), nil, f.other.ID)
	assert.True(t, apperrors.IsNotFound(err))

	_, err = f.svc.ToggleEnabled(f.ctx, p.ID, nil, nil, f.owner.ID)
	assert.True(t, apperrors.IsValidation(err))

	_, err = f.svc.ToggleEnabled(f.ctx, p.ID, boolPtr(true), int64Ptr(1), f.owner.ID)
	assert.True(t, apperrors.IsConflict(err))
}

func TestDeleteProgramCascades(t *testing.T) {
	f := newProgramFixture(t)
	p := f.create(t, "Avios",
		DesiredRatio{CreditCardID: f.cardA.ID, Ratio: 1.0},
		DesiredRatio{CreditCardID: f.cardB.ID, Ratio: 2.0},
	)

	require.True(t, apperrors.IsNotFound(f.svc.DeleteProgram(f.ctx, p.ID, f.other.ID)))
	require.NoError(t, f.svc.DeleteProgram(f.ctx, p.ID, f.owner.ID))

	assert.Empty(t, activeSet(t, f.db, p.ID))
	var reloaded models.Program
	require.NoError(t, f.db.First(&reloaded, "id = ?", p.ID).Error)
	assert.Equal(t, models.StateArchived, reloaded.State)

	page, err := f.svc.ListPrograms(f.ctx, ListProgramsQuery{PageSize: 20}, f.owner.ID)
	require.NoError(t, err)
	assert.Empty(t, page.Programs)

	_, err = f.svc.GetProgram(f.ctx, p.ID, f.owner.ID)
	assert.True(t, apperrors.IsNotFound(err))
	assert.True(t, apperrors.IsNotFound(f.svc.DeleteProgram(f.ctx, p.ID, f.owner.ID)))
}

func TestListProgramsPaginatesNewestFirst(t *testing.T) {
	f := newProgramFixture(t)
	for _, name := range []string{"One", "Two", "Three"} {
		f.create(t, name)
	}
	_, err := f.svc.CreateProgram(f.ctx, CreateProgramInput{Name: "Not mine"}, f.other.ID)
	require.NoError(t, err)

	page, err := f.svc.ListPrograms(f.ctx, ListProgramsQuery{Page: 0, PageSize: 2}, f.owner.ID)
	require.NoError(t, err)
	require.Len(t, page.Programs, 2)
	assert.Equal(t, "Three", page.Programs[0].Name)
	assert.Equal(t, "Two", page.Programs[1].Name)
	assert.Equal(t, models.Pagination{Page: 0, PageSize: 2, Total: 3, TotalPages: 2}, page.Pagination)

	page, err = f.svc.ListPrograms(f.ctx, ListProgramsQuery{Page: 1, PageSize: 2}, f.owner.ID)
	require.NoError(t, err)
	require.Len(t, page.Programs, 1)
	assert.Equal(t, "One", page.Programs[0].Name)

	_, err = f.svc.ListPrograms(f.ctx, ListProgramsQuery{Page: 0, PageSize: 101}, f.owner.ID)
	assert.True(t, apperrors.IsValidation(err))
	_, err = f.svc.ListPrograms(f.ctx, ListProgramsQuery{Page: -1, PageSize: 10}, f.owner.ID)
	assert.True(t, apperrors.IsValidation(err))
}

func TestStats(t *testing.T) {
	f := newProgramFixture(t)
	f.create(t, "With ratios", DesiredRatio{CreditCardID: f.cardA.ID, Ratio: 1.0})
	f.create(t, "Plain")
	_, err := f.svc.CreateProgram(f.ctx, CreateProgramInput{Name: "Off", Enabled: boolPtr(false)}, f.owner.ID)
	require.NoError(t, err)
	gone := f.create(t, "Gone", DesiredRatio{CreditCardID: f.cardB.ID, Ratio: 1.0})
	require.NoError(t, f.svc.DeleteProgram(f.ctx, gone.ID, f.owner.ID))

	stats, err := f.svc.Stats(f.ctx, f.owner.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ProgramStats{Total: 3, Enabled: 2, Disabled: 1, WithTransferRatios: 1}, *stats)
}

func TestCleanNameNormalizes(t *testing.T) {
	assert.Equal(t, "Caf\u00e9 Miles", cleanName("  Cafe\u0301 Miles "))
	assert.Equal(t, "Avios", cleanName("Avios"))
}

func TestMalformedIDsNeverReachTheDatabase(t *testing.T) {
	f := newProgramFixture(t)
	ratios := NewTransferRatioService(f.db, zap.NewNop(), nil)
	cards := NewCreditCardService(f.db, zap.NewNop(), nil)
	sqlDB, err := f.db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	_, err = f.svc.GetProgram(f.ctx, "abc", f.owner.ID)
	assert.True(t, apperrors.IsNotFound(err))
	_, err = f.svc.UpdateProgram(f.ctx, "abc", f.update("Avios", nil), f.owner.ID)
	assert.True(t, apperrors.IsNotFound(err))
	_, err = f.svc.ToggleEnabled(f.ctx, "abc", boolPtr(false), nil, f.owner.ID)
	assert.True(t, apperrors.IsNotFound(err))
	assert.True(t, apperrors.IsNotFound(f.svc.DeleteProgram(f.ctx, "abc", f.owner.ID)))

	_, err = ratios.Get(f.ctx, "abc", f.owner.ID)
	assert.True(t, apperrors.IsNotFound(err))
	assert.True(t, apperrors.IsNotFound(ratios.Archive(f.ctx, "abc", f.owner.ID)))
	_, err = cards.Archive(f.ctx, "abc")
	assert.True(t, apperrors.IsNotFound(err))

	_, err = f.svc.CreateProgram(f.ctx, CreateProgramInput{
		Name:           "Avios",
		TransferRatios: []DesiredRatio{{CreditCardID: "abc", Ratio: 1}},
	}, f.owner.ID)
	require.True(t, apperrors.IsValidation(err))
	fields := apperrors.From(err).AllValidationErrors()
	require.Len(t, fields, 1)
	assert.Equal(t, "transfer_ratios[0].credit_card_id", fields[0].Field)

	_, err = ratios.Create(f.ctx, CreateTransferRatioInput{ProgramID: "abc", CreditCardID: f.cardA.ID, Ratio: 1}, f.owner.ID)
	assert.True(t, apperrors.IsValidation(err))
}

func TestListProgramsPastTheLastPage(t *testing.T) {
	f := newProgramFixture(t)
	f.create(t, "Avios")

	page, err := f.svc.ListPrograms(f.ctx, ListProgramsQuery{Page: 1 << 62, PageSize: 4}, f.owner.ID)
	require.NoError(t, err)
	assert.Empty(t, page.Programs)
	assert.Equal(t, int64(1), page.Pagination.Total)
	assert.Equal(t, 1, page.Pagination.TotalPages)

	page, err = f.svc.ListPrograms(f.ctx, ListProgramsQuery{Page: 1, PageSize: 1}, f.owner.ID)
	require.NoError(t, err)
	assert.Empty(t, page.Programs)

	page, err = f.svc.ListPrograms(f.ctx, ListProgramsQuery{Page: 0, PageSize: 1}, f.owner.ID)
	require.NoError(t, err)
	assert.Len(t, page.Programs, 1)
}

func TestAssetHeldByOthers(t *testing.T) {
	f := newProgramFixture(t)
	_, err := f.svc.CreateProgram(f.ctx, CreateProgramInput{Name: "Avios", AssetName: "logos/avios.png"}, f.owner.ID)
	require.NoError(t, err)

	held, err := f.svc.AssetHeldByOthers(f.ctx, "logos/avios.png", f.other.ID)
	require.NoError(t, err)
	assert.True(t, held)

	held, err = f.svc.AssetHeldByOthers(f.ctx, "logos/avios.png", f.owner.ID)
	require.NoError(t, err)
	assert.False(t, held)

	held, err = f.svc.AssetHeldByOthers(f.ctx, "logos/unused.png", f.other.ID)
	require.NoError(t, err)
	assert.False(t, held)
}
