package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"loyalty-draw-system/models"

	"github.com/sirupsen/logrus"
)

// ObjectStore receives published reports. utils.R2Store implements it.
type ObjectStore interface {
	PutObject(ctx context.Context, key string, body []byte, contentType string) (string, error)
}

// DrawReport is the public winners list of one draw.
type DrawReport struct {
	DrawType         string        `json:"draw_type"`
	DisplayName      string        `json:"display_name"`
	WinningNumberID  string        `json:"winning_number_id"`
	WinningTopDigits string        `json:"winning_top_digits"`
	Limit            int           `json:"limit"`
	GeneratedAt      time.Time     `json:"generated_at"`
	Entries          []ReportEntry `json:"entries"`
}

type ReportEntry struct {
	Rank          int            `json:"rank"` // tied scores share a rank
	InstanceID    string         `json:"instance_id"`
	UserID        string         `json:"user_id"`
	DefinitionID  string         `json:"definition_id"`
	DrawTopDigits string         `json:"draw_top_digits"`
	Score         float64        `json:"score"`
	Outcome       models.Outcome `json:"outcome"`
}

type ReportService struct {
	DrawTypes *DrawTypeService
	Ranking   *RankingSelector
	Store     ObjectStore
	Now       func() time.Time
}

func NewReportService(drawTypes *DrawTypeService, ranking *RankingSelector, store ObjectStore) *ReportService {
	return &ReportService{DrawTypes: drawTypes, Ranking: ranking, Store: store, Now: utcNow}
}

// BuildReport ranks the active winning number's results into a report.
func (s *ReportService) BuildReport(ctx context.Context, drawTypeID string, limit int) (*DrawReport, error) {
	drawType, err := s.DrawTypes.Get(ctx, drawTypeID)
	if err != nil {
		return nil, err
	}
	winning, err := s.DrawTypes.ActiveWinningNumber(ctx, drawType.ID, s.Now())
	if err != nil {
		return nil, err
	}
	results, err := s.Ranking.SelectTop(ctx, drawType, winning, limit, true)
	if err != nil {
		return nil, err
	}

	report := &DrawReport{
		DrawType:        drawType.InternalName,
		DisplayName:     drawType.DisplayName,
		WinningNumberID: winning.ID,
		Limit:           limit,
		GeneratedAt:     s.Now(),
		Entries:         make([]ReportEntry, 0, len(results)),
	}
	rank := 0
	for i, r := range results {
		if i == 0 || scoreOf(r) != scoreOf(results[i-1]) {
			rank = i + 1
		}
		report.WinningTopDigits = r.WinningTopDigits
		report.Entries = append(report.Entries, ReportEntry{
			Rank:          rank,
			InstanceID:    r.InstanceID,
			UserID:        r.UserID,
			DefinitionID:  r.DefinitionID,
			DrawTopDigits: r.DrawTopDigits,
			Score:         scoreOf(r),
			Outcome:       r.Outcome,
		})
	}
	return report, nil
}

// PublishTop builds the report and uploads it, returning its URL.
func (s *ReportService) PublishTop(ctx context.Context, drawTypeID string, limit int) (string, *DrawReport, error) {
	if s.Store == nil {
		return "", nil, fmt.Errorf("report storage is not configured")
	}
	report, err := s.BuildReport(ctx, drawTypeID, limit)
	if err != nil {
		return "", nil, err
	}
	body, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", nil, err
	}
	key := fmt.Sprintf("draw-reports/%s/%s.json", report.DrawType, report.GeneratedAt.Format("20060102T150405Z"))
	url, err := s.Store.PutObject(ctx, key, body, "application/json")
	if err != nil {
		return "", nil, err
	}

	drawLog.WithFields(logrus.Fields{
		"draw_type": report.DrawType,
		"entries":   len(report.Entries),
		"url":       url,
	}).Info("📤 draw report published")
	return url, report, nil
}
