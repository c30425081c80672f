package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"loyalty-draw-system/models"
	"loyalty-draw-system/scoring"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	objects map[string][]byte
	types   map[string]string
	err     error
}

func (m *memoryStore) PutObject(_ context.Context, key string, body []byte, contentType string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	if m.objects == nil {
		m.objects = map[string][]byte{}
		m.types = map[string]string{}
	}
	m.objects[key] = body
	m.types[key] = contentType
	return "https://cdn.test/" + key, nil
}

func TestPublishTopUploadsRankedReport(t *testing.T) {
	db := setupServicesDB(t)
	engine := newTestEngine(db, UniquePerDefinition, 1)
	store := &memoryStore{}
	reports := NewReportService(engine.DrawTypes, NewRankingSelector(db, engine.DrawTypes), store)
	reports.Now = func() time.Time { return testEpoch.Add(2 * time.Hour) }

	user := seedUser(t, db, "u-1")
	defs := seedDefinitions(t, db, 4)
	dt := mustDrawType(t, engine.DrawTypes, "final_day", string(scoring.Hamming), nil)
	winning := mustWinning(t, engine.DrawTypes, dt.ID, "abd")

	var candidates []models.NFTInstance
	for i, origin := range []string{"abc", "abd", "abo", "zzz"} {
		candidates = append(candidates, seedInstance(t, db, user.ID, defs[i].ID, origin))
	}
	_, err := engine.EvaluateBatch(t.Context(), BatchRequest{DrawType: dt, WinningNumber: winning, Candidates: candidates})
	require.NoError(t, err)

	url, report, err := reports.PublishTop(t.Context(), dt.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.test/draw-reports/final_day/20241103T110000Z.json", url)

	require.Len(t, report.Entries, 3)
	assert.Equal(t, []int{1, 2, 2}, []int{report.Entries[0].Rank, report.Entries[1].Rank, report.Entries[2].Rank})
	assert.Equal(t, candidates[1].ID, report.Entries[0].InstanceID)
	assert.Equal(t, winning.ID, report.WinningNumberID)
	assert.Equal(t, scoring.WinningTopDigits("abd"), report.WinningTopDigits)

	body := store.objects["draw-reports/final_day/20241103T110000Z.json"]
	require.NotEmpty(t, body)
	assert.Equal(t, "application/json", store.types["draw-reports/final_day/20241103T110000Z.json"])
	var decoded DrawReport
	require.NoError(t, json.Unmarshal(body, &decoded))
	assert.Equal(t, "final_day", decoded.DrawType)
	assert.Len(t, decoded.Entries, 3)
}

func TestPublishTopFailures(t *testing.T) {
	db := setupServicesDB(t)
	engine := newTestEngine(db, UniquePerDefinition, 1)
	ranking := NewRankingSelector(db, engine.DrawTypes)
	dt := mustDrawType(t, engine.DrawTypes, "final_day", "", nil)

	_, _, err := NewReportService(engine.DrawTypes, ranking, nil).PublishTop(t.Context(), dt.ID, 3)
	assert.Error(t, err)

	store := &memoryStore{}
	reports := NewReportService(engine.DrawTypes, ranking, store)
	_, _, err = reports.PublishTop(t.Context(), dt.ID, 3)
	assert.ErrorIs(t, err, ErrMissingWinningNumber)

	_, _, err = reports.PublishTop(t.Context(), "missing", 3)
	assert.ErrorIs(t, err, ErrNotFound)

	mustWinning(t, engine.DrawTypes, dt.ID, "lucky")
	store.err = errors.New("bucket unavailable")
	_, _, err = reports.PublishTop(t.Context(), dt.ID, 3)
	assert.ErrorContains(t, err, "bucket unavailable")
	assert.Empty(t, store.objects)
}
