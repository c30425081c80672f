package services

import (
	"fmt"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"loyalty-draw-system/metrics"
	"loyalty-draw-system/models"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var testEpoch = time.Date(2024, 11, 3, 9, 0, 0, 0, time.UTC)

func setupServicesDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, models.AutoMigrate(db))
	return db
}

// tickingClock advances one second per call so evaluation times are ordered.
func tickingClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	now := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}
}

func seedUser(t *testing.T, db *gorm.DB, externalID string) models.User {
	t.Helper()
	user := models.User{ExternalUserID: externalID, Nickname: externalID}
	require.NoError(t, db.Create(&user).Error)
	return user
}

func seedDefinition(t *testing.T, db *gorm.DB, prefix string, triggers bool) models.NFTDefinition {
	t.Helper()
	def := models.NFTDefinition{Prefix: prefix, Name: "Badge " + prefix, TriggersBingoCard: triggers}
	require.NoError(t, db.Create(&def).Error)
	return def
}

// seedDefinitions creates n plain definitions P00..P(n-1).
func seedDefinitions(t *testing.T, db *gorm.DB, n int) []models.NFTDefinition {
	t.Helper()
	defs := make([]models.NFTDefinition, 0, n)
	for i := 0; i < n; i++ {
		defs = append(defs, seedDefinition(t, db, fmt.Sprintf("P%02d", i), false))
	}
	return defs
}

func seedInstance(t *testing.T, db *gorm.DB, userID, definitionID, origin string) models.NFTInstance {
	t.Helper()
	inst := models.NFTInstance{
		UserID:       userID,
		DefinitionID: definitionID,
		Origin:       origin,
		UniqueNFTID:  "T-" + uuid.NewString()[:12],
		AcquiredAt:   testEpoch,
	}
	require.NoError(t, db.Create(&inst).Error)
	return inst
}

func newTestBingoService(db *gorm.DB) *BingoService {
	svc := NewBingoService(db).WithRand(rand.New(rand.NewPCG(42, 7)))
	svc.Now = tickingClock(testEpoch)
	return svc
}

func newTestEngine(db *gorm.DB, policy UniquenessPolicy, workers int) *PrizeDrawEngine {
	engine := NewPrizeDrawEngine(db, EngineConfig{Uniqueness: policy, Workers: workers})
	engine.Now = tickingClock(testEpoch)
	engine.DrawTypes.Now = func() time.Time { return testEpoch.Add(time.Hour) }
	return engine
}

func mustDrawType(t *testing.T, svc *DrawTypeService, name, algorithm string, threshold *float64) *models.PrizeDrawType {
	t.Helper()
	dt, err := svc.Create(t.Context(), DrawTypeInput{InternalName: name, Algorithm: algorithm, DefaultThreshold: threshold})
	require.NoError(t, err)
	return dt
}

func mustWinning(t *testing.T, svc *DrawTypeService, drawTypeID, value string) *models.PrizeDrawWinningNumber {
	t.Helper()
	w, err := svc.SubmitWinningNumber(t.Context(), drawTypeID, value, nil, nil)
	require.NoError(t, err)
	return w
}

func f64(v float64) *float64 { return &v }

func countResults(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&models.PrizeDrawResult{}).Count(&n).Error)
	return n
}

// counterValue reads a counter from the application registry.
func counterValue(t *testing.T, name string) float64 {
	t.Helper()
	families, err := metrics.Registry.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() == name {
			return family.GetMetric()[0].GetCounter().GetValue()
		}
	}
	return 0
}
