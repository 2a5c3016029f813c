package services

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/codyseavey/tcg-market-report/internal/models"
)

const (
	ReportDataFile = "report_data.json"
	ReportTextFile = "report.md"
)

var unsafePathRe = regexp.MustCompile(`[^A-Za-z0-9]`)

// CardKey is the dump key of a card: name and number with every
// non-alphanumeric character replaced by '_'
func CardKey(card models.CardIdentity) string {
	return unsafePathRe.ReplaceAllString(card.Name, "_") + "_" + unsafePathRe.ReplaceAllString(card.Number, "_")
}

// NewReportData collects what a run dumps: full records per marketplace and the resolved URLs
func NewReportData(report *models.Report, results []Resolution, lang string) *models.ReportData {
	data := &models.ReportData{
		CardInfo:    models.DumpCardInfo{CardIdentity: report.Identity, ImgURL: report.ImageURL},
		SNKRRecords: []models.PriceRecord{},
		PCRecords:   []models.PriceRecord{},
		USDToJPY:    report.USDToJPY,
		Lang:        lang,
	}
	for _, res := range results {
		switch res.Marketplace {
		case models.MarketplacePriceCharting:
			data.PCURL = res.URL
			if res.Records != nil {
				data.PCRecords = res.Records
			}
		case models.MarketplaceSNKRDUNK:
			data.SNKRURL = res.URL
			if res.Records != nil {
				data.SNKRRecords = res.Records
			}
		}
	}
	return data
}

// ResolutionsFromData rebuilds resolutions from a dump so a report can be re-aggregated
func ResolutionsFromData(data *models.ReportData) []Resolution {
	var results []Resolution
	for _, m := range models.AllMarketplaces() {
		res := Resolution{Marketplace: m, Status: StatusNotFound, URL: data.URL(m), Records: data.Records(m)}
		if res.URL != "" || len(res.Records) > 0 {
			res.Status = StatusResolved
		}
		if m == models.MarketplaceSNKRDUNK {
			res.ImageURL = data.CardInfo.ImgURL
		}
		results = append(results, res)
	}
	return results
}

// ReportStore persists finished reports: a per-card directory under the output
// directory holding the JSON dump and the text report, plus a database row.
// A nil db skips the database.
type ReportStore struct {
	outDir string
	db     *gorm.DB
}

func NewReportStore(outDir string, db *gorm.DB) *ReportStore {
	return &ReportStore{outDir: outDir, db: db}
}

// Save writes the dump and text report and returns the card directory
func (s *ReportStore) Save(runID string, data *models.ReportData, text string) (string, error) {
	card := data.CardInfo.CardIdentity
	key := CardKey(card)
	dir := filepath.Join(s.outDir, key)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}

	payload, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode report data: %w", err)
	}
	dataPath := filepath.Join(dir, ReportDataFile)
	if err := os.WriteFile(dataPath, payload, 0o644); err != nil {
		return "", fmt.Errorf("failed to write report data: %w", err)
	}
	if text != "" {
		if err := os.WriteFile(filepath.Join(dir, ReportTextFile), []byte(text), 0o644); err != nil {
			return "", fmt.Errorf("failed to write report text: %w", err)
		}
	}

	if s.db != nil {
		dump := models.ReportDump{
			CardKey:  key,
			RunID:    runID,
			Name:     card.Name,
			Number:   card.Number,
			Grade:    card.Grade,
			Category: card.Category,
			Payload:  string(payload),
			FilePath: dataPath,
		}
		// Upsert on the card key so each card keeps only its latest report
		err := s.db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "card_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"run_id", "name", "number", "grade", "category", "payload", "file_path", "updated_at"}),
		}).Create(&dump).Error
		if err != nil {
			return dir, fmt.Errorf("failed to save report dump: %w", err)
		}
	}

	log.Printf("Report store: saved %s to %s", key, dir)
	return dir, nil
}

// Load returns the stored dump for a card key from the database
func (s *ReportStore) Load(cardKey string) (*models.ReportData, error) {
	if s.db == nil {
		return nil, fmt.Errorf("report store has no database")
	}
	var dump models.ReportDump
	if err := s.db.Where("card_key = ?", cardKey).First(&dump).Error; err != nil {
		return nil, fmt.Errorf("failed to load report %s: %w", cardKey, err)
	}
	var data models.ReportData
	if err := json.Unmarshal([]byte(dump.Payload), &data); err != nil {
		return nil, fmt.Errorf("failed to decode report %s: %w", cardKey, err)
	}
	return &data, nil
}

// List returns the most recently updated dumps
func (s *ReportStore) List(limit int) ([]models.ReportDump, error) {
	if s.db == nil {
		return []models.ReportDump{}, nil
	}
	if limit <= 0 {
		limit = 50
	}
	var dumps []models.ReportDump
	if err := s.db.Order("updated_at DESC").Limit(limit).Find(&dumps).Error; err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	return dumps, nil
}

// ReadReportData reads a report_data.json file, or the one inside a card directory
func ReadReportData(path string) (*models.ReportData, error) {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		path = filepath.Join(path, ReportDataFile)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read report data: %w", err)
	}
	var data models.ReportData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("failed to decode report data: %w", err)
	}
	return &data, nil
}

// SaveArtifacts writes visualizer output into a card directory
func (s *ReportStore) SaveArtifacts(dir string, artifacts []Artifact) error {
	for _, a := range artifacts {
		if err := os.WriteFile(filepath.Join(dir, filepath.Base(a.Name)), a.Content, 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", a.Name, err)
		}
	}
	return nil
}
