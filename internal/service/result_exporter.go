package service

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/school-results-api/internal/models"
	"github.com/noah-isme/school-results-api/pkg/export"
	"github.com/noah-isme/school-results-api/pkg/storage"
)

type resultsSource interface {
	ClassResults(ctx context.Context, sectionID, termID string) (*models.ResultSheet, error)
	SubjectResults(ctx context.Context, sectionID, subjectID, termID string) (*models.ResultSheet, error)
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// ExportResult captures successful generation metadata.
type ExportResult struct {
	RelativePath string
	Token        string
	URL          string
	Format       export.Format
	ExpiresAt    time.Time
}

// ResultExporter renders results sheets to files and signs download links for them.
type ResultExporter struct {
	results resultsSource
	storage fileStorage
	signer  *storage.SignedURLSigner
	logger  *zap.Logger
	cfg     ExportConfig
}

// NewResultExporter constructs a ResultExporter.
func NewResultExporter(results resultsSource, store fileStorage, signer *storage.SignedURLSigner, cfg ExportConfig, logger *zap.Logger) *ResultExporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	return &ResultExporter{
		results: results,
		storage: store,
		signer:  signer,
		logger:  logger,
		cfg:     cfg,
	}
}

// Generate builds the dataset for a job, renders it and stores the file.
func (s *ResultExporter) Generate(ctx context.Context, job *models.ExportJob) (*ExportResult, error) {
	if job == nil {
		return nil, fmt.Errorf("job nil")
	}
	format, err := export.ParseFormat(job.Params.Format)
	if err != nil {
		return nil, err
	}
	dataset, err := s.buildDataset(ctx, job)
	if err != nil {
		return nil, err
	}

	payload, err := export.NewRenderer(format).Render(dataset)
	if err != nil {
		return nil, err
	}

	relPath, err := s.storage.Save(s.buildFilename(job, format), payload)
	if err != nil {
		return nil, err
	}

	token, expiresAt, err := s.signer.Generate(job.ID, relPath)
	if err != nil {
		return nil, err
	}
	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}

	s.logger.Info("results export generated",
		zap.String("job_id", job.ID),
		zap.String("path", relPath),
		zap.Int("rows", len(dataset.Rows)),
	)
	return &ExportResult{
		RelativePath: relPath,
		Token:        token,
		URL:          fmt.Sprintf("%s/export/%s", prefix, token),
		Format:       format,
		ExpiresAt:    expiresAt,
	}, nil
}

// ParseToken validates download token metadata.
func (s *ResultExporter) ParseToken(token string, allowExpired bool) (jobID, relPath string, expiresAt time.Time, err error) {
	return s.signer.Parse(token, allowExpired)
}

// Open returns a handle to the stored file.
func (s *ResultExporter) Open(relPath string) (*os.File, error) {
	return s.storage.Open(relPath)
}

// Delete removes a stored export file.
func (s *ResultExporter) Delete(relPath string) error {
	return s.storage.Delete(relPath)
}

// Cleanup removes files older than ttl (defaults to configured ResultTTL when ttl <= 0).
func (s *ResultExporter) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}

func (s *ResultExporter) buildFilename(job *models.ExportJob, format export.Format) string {
	timestamp := time.Now().UTC().Format("20060102_150405")
	parts := []string{string(job.Type), sanitizeFilename(job.Params.TermID), sanitizeFilename(job.Params.SectionID)}
	if job.Params.SubjectID != "" {
		parts = append(parts, sanitizeFilename(job.Params.SubjectID))
	}
	parts = append(parts, timestamp)
	return strings.Join(parts, "_") + format.Extension()
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}

func (s *ResultExporter) buildDataset(ctx context.Context, job *models.ExportJob) (export.Dataset, error) {
	var (
		sheet *models.ResultSheet
		err   error
		title string
	)
	switch job.Type {
	case models.ExportTypeClassResults:
		sheet, err = s.results.ClassResults(ctx, job.Params.SectionID, job.Params.TermID)
		title = "Class Results"
	case models.ExportTypeSubjectResults:
		sheet, err = s.results.SubjectResults(ctx, job.Params.SectionID, job.Params.SubjectID, job.Params.TermID)
		title = "Subject Results"
	default:
		return export.Dataset{}, fmt.Errorf("unsupported export type %s", job.Type)
	}
	if err != nil {
		return export.Dataset{}, err
	}
	return sheetDataset(sheet, title), nil
}

// sheetDataset flattens a results sheet into one row per student with a column per subject.
func sheetDataset(sheet *models.ResultSheet, title string) export.Dataset {
	headers := []string{"Position", "Student"}
	for _, subject := range sheet.Subjects {
		headers = append(headers, subject.Name)
	}
	headers = append(headers, "Total", "Average", "Grade", "Remarks")

	rows := make([]map[string]string, 0, len(sheet.Students))
	for _, student := range sheet.Students {
		row := map[string]string{
			"Position": student.PositionLabel,
			"Student":  student.FullName,
			"Total":    student.TotalScore.StringFixed(2),
			"Average":  student.Average.StringFixed(2),
			"Grade":    student.Grade,
			"Remarks":  student.Remarks,
		}
		for _, score := range student.SubjectScores {
			row[score.SubjectName] = score.Score.StringFixed(2)
		}
		rows = append(rows, row)
	}

	return export.Dataset{
		Title:   fmt.Sprintf("%s - %s - %s", title, sheet.Section.Name, sheet.AcademicTerm.Name),
		Headers: headers,
		Rows:    rows,
	}
}
