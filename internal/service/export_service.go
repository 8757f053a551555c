package service

import (
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/uniqn-app/staffsync/internal/models"
	appErrors "github.com/uniqn-app/staffsync/pkg/errors"
	"github.com/uniqn-app/staffsync/pkg/export"
	"github.com/uniqn-app/staffsync/pkg/storage"
)

// ExportFormat selects the rendered file type.
type ExportFormat string

const (
	ExportCSV ExportFormat = "csv"
	ExportPDF ExportFormat = "pdf"
)

// exportStore is the slice of storage the export flow needs.
type exportStore interface {
	Save(relPath string, data []byte) error
	Open(relPath string) (*os.File, error)
}

// ExportResult points at a rendered schedule file.
type ExportResult struct {
	Token     string    `json:"token"`
	Path      string    `json:"path"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Download is an open handle to a previously exported file.
type Download struct {
	File        *os.File
	Filename    string
	ContentType string
}

// ExportService renders a subject's projected schedule into downloadable
// CSV or PDF files. Files are fetched with a signed token, not a session,
// so shared links keep working until the token expires.
type ExportService struct {
	store  exportStore
	signer *storage.SignedURLSigner
	csv    *export.CSVExporter
	pdf    *export.PDFExporter
	logger *zap.Logger
	now    func() time.Time
}

// NewExportService constructs the service.
func NewExportService(store exportStore, signer *storage.SignedURLSigner, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		store:  store,
		signer: signer,
		csv:    export.NewCSVExporter(),
		pdf:    export.NewPDFExporter(),
		logger: logger,
		now:    time.Now,
	}
}

var scheduleColumns = []string{"Date", "Start", "End", "Event", "Location", "Role", "Type", "Status"}

func scheduleTable(events []models.ScheduleEvent) export.Table {
	rows := make([][]string, 0, len(events))
	for _, ev := range events {
		rows = append(rows, []string{
			ev.Date,
			ev.StartTime,
			ev.EndTime,
			ev.EventName,
			ev.Location,
			ev.Role,
			string(ev.Type),
			string(ev.Status),
		})
	}
	return export.Table{Columns: scheduleColumns, Rows: rows}
}

// ExportSchedule renders the events and stores the file under the
// subject's export directory, returning a signed download token.
func (s *ExportService) ExportSchedule(subjectID string, events []models.ScheduleEvent, format ExportFormat) (*ExportResult, error) {
	if subjectID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "subject id is required")
	}

	table := scheduleTable(events)
	now := s.now()

	var data []byte
	var err error
	switch format {
	case ExportCSV:
		data, err = s.csv.Render(table)
	case ExportPDF:
		data, err = s.pdf.Render(table, "Work Schedule", now)
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}
	if err != nil {
		return nil, appErrors.Wrap(err, "EXPORT_RENDER_FAILED", 500, "failed to render schedule export")
	}

	relPath := path.Join("schedules", subjectID, fmt.Sprintf("%s-%s.%s", now.Format("20060102"), uuid.NewString(), format))
	if err := s.store.Save(relPath, data); err != nil {
		return nil, appErrors.Wrap(err, "EXPORT_SAVE_FAILED", 500, "failed to store schedule export")
	}

	token, expiresAt, err := s.signer.Generate(subjectID, relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, "EXPORT_SIGN_FAILED", 500, "failed to sign download token")
	}

	s.logger.Info("schedule exported",
		zap.String("subject_id", subjectID),
		zap.String("path", relPath),
		zap.Int("events", len(events)),
		zap.String("format", string(format)))

	return &ExportResult{Token: token, Path: relPath, ExpiresAt: expiresAt}, nil
}

// OpenDownload validates the token and opens the referenced file.
func (s *ExportService) OpenDownload(token string) (*Download, error) {
	_, relPath, _, err := s.signer.Parse(token)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid or expired download token")
	}
	file, err := s.store.Open(relPath)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "export no longer available")
	}

	contentType := "application/octet-stream"
	switch ExportFormat(strings.TrimPrefix(path.Ext(relPath), ".")) {
	case ExportCSV:
		contentType = "text/csv"
	case ExportPDF:
		contentType = "application/pdf"
	}
	return &Download{File: file, Filename: path.Base(relPath), ContentType: contentType}, nil
}
