package service

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/campusflow/sms-api/internal/models"
	appErrors "github.com/campusflow/sms-api/pkg/errors"
	"github.com/campusflow/sms-api/pkg/export"
	"github.com/campusflow/sms-api/pkg/storage"
)

// Report formats accepted by the export endpoints.
const (
	ReportFormatCSV = "csv"
	ReportFormatPDF = "pdf"
)

const reportPageSize = 1000

type reportAttendanceRepository interface {
	List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceDetail, int, error)
}

type reportFeeRepository interface {
	List(ctx context.Context, filter models.FeeFilter) ([]models.FeeDetail, int, error)
}

type reportMarkRepository interface {
	List(ctx context.Context, filter models.MarkFilter) ([]models.MarkDetail, int, error)
}

// ReportResult describes a generated export plus its signed download token.
type ReportResult struct {
	FileName      string    `json:"file_name"`
	Format        string    `json:"format"`
	RowCount      int       `json:"row_count"`
	DownloadToken string    `json:"download_token"`
	ExpiresAt     time.Time `json:"expires_at"`
	GeneratedAt   time.Time `json:"generated_at"`
}

// ReportService renders tabular exports, persists them and hands out
// signed expiring download tokens.
type ReportService struct {
	attendance reportAttendanceRepository
	fees       reportFeeRepository
	marks      reportMarkRepository
	csv        *export.CSVExporter
	pdf        *export.PDFExporter
	store      *storage.LocalStorage
	signer     *storage.SignedURLSigner
	logger     *zap.Logger
}

func NewReportService(
	attendance reportAttendanceRepository,
	fees reportFeeRepository,
	marks reportMarkRepository,
	store *storage.LocalStorage,
	signer *storage.SignedURLSigner,
	logger *zap.Logger,
) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportService{
		attendance: attendance,
		fees:       fees,
		marks:      marks,
		csv:        export.NewCSVExporter(),
		pdf:        export.NewPDFExporter(),
		store:      store,
		signer:     signer,
		logger:     logger,
	}
}

// AttendanceReport exports every attendance row matching the filter.
func (s *ReportService) AttendanceReport(ctx context.Context, filter models.AttendanceFilter, format string) (*ReportResult, error) {
	filter.Page = 1
	filter.PageSize = reportPageSize
	var rows []models.AttendanceDetail
	for {
		page, _, err := s.attendance.List(ctx, filter)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance rows")
		}
		rows = append(rows, page...)
		if len(page) < reportPageSize {
			break
		}
		filter.Page++
	}

	data := export.Dataset{Headers: []string{"Student", "Date", "Status", "Remarks"}}
	for _, row := range rows {
		data.Rows = append(data.Rows, map[string]string{
			"Student": row.StudentName,
			"Date":    row.Date.Format("2006-01-02"),
			"Status":  string(row.Status),
			"Remarks": stringOrEmpty(row.Remarks),
		})
	}
	return s.render("attendance", "Attendance Register", format, data)
}

// FeeReport exports every fee row matching the filter.
func (s *ReportService) FeeReport(ctx context.Context, filter models.FeeFilter, format string) (*ReportResult, error) {
	filter.Page = 1
	filter.PageSize = reportPageSize
	var rows []models.FeeDetail
	for {
		page, _, err := s.fees.List(ctx, filter)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load fee rows")
		}
		rows = append(rows, page...)
		if len(page) < reportPageSize {
			break
		}
		filter.Page++
	}

	data := export.Dataset{Headers: []string{"Student", "Fee Type", "Academic Year", "Amount", "Paid", "Balance", "Status", "Due Date"}}
	for _, row := range rows {
		data.Rows = append(data.Rows, map[string]string{
			"Student":       row.StudentName,
			"Fee Type":      row.FeeType,
			"Academic Year": row.AcademicYear,
			"Amount":        formatAmount(row.Amount),
			"Paid":          formatAmount(row.AmountPaid),
			"Balance":       formatAmount(row.Amount - row.AmountPaid),
			"Status":        string(row.Status),
			"Due Date":      row.DueDate.Format("2006-01-02"),
		})
	}
	return s.render("fees", "Fee Collection", format, data)
}

// MarkReport exports every mark row matching the filter.
func (s *ReportService) MarkReport(ctx context.Context, filter models.MarkFilter, format string) (*ReportResult, error) {
	filter.Page = 1
	filter.PageSize = reportPageSize
	var rows []models.MarkDetail
	for {
		page, _, err := s.marks.List(ctx, filter)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load mark rows")
		}
		rows = append(rows, page...)
		if len(page) < reportPageSize {
			break
		}
		filter.Page++
	}

	data := export.Dataset{Headers: []string{"Student", "Exam", "Scored", "Max", "Percentage"}}
	for _, row := range rows {
		pct := 0.0
		if row.MaxMarks > 0 {
			pct = 100 * row.MarksScored / row.MaxMarks
		}
		data.Rows = append(data.Rows, map[string]string{
			"Student":    row.StudentName,
			"Exam":       row.ExamName,
			"Scored":     formatAmount(row.MarksScored),
			"Max":        formatAmount(row.MaxMarks),
			"Percentage": formatAmount(pct),
		})
	}
	return s.render("marks", "Marks Sheet", format, data)
}

// Open validates a download token and returns a handle on the stored file.
func (s *ReportService) Open(token string) (*os.File, string, error) {
	_, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, "", appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")
	}
	file, err := s.store.Open(relPath)
	if err != nil {
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "report file not found")
	}
	return file, relPath, nil
}

// Cleanup removes export files older than the retention window.
func (s *ReportService) Cleanup(ttl time.Duration) {
	deleted, err := s.store.CleanupOlderThan(ttl)
	if err != nil {
		s.logger.Warn("report cleanup failed", zap.Error(err))
		return
	}
	if len(deleted) > 0 {
		s.logger.Info("removed expired report files", zap.Int("count", len(deleted)))
	}
}

func (s *ReportService) render(kind, title, format string, data export.Dataset) (*ReportResult, error) {
	var (
		payload []byte
		err     error
	)
	switch format {
	case ReportFormatCSV, "":
		format = ReportFormatCSV
		payload, err = s.csv.Render(data)
	case ReportFormatPDF:
		payload, err = s.pdf.Render(data, title)
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render report")
	}

	jobID := uuid.NewString()
	fileName := fmt.Sprintf("reports/%s-%s.%s", kind, jobID, format)
	relPath, err := s.store.Save(fileName, payload)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store report")
	}

	token, expiresAt, err := s.signer.Generate(jobID, relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download token")
	}

	s.logger.Info("report generated",
		zap.String("kind", kind),
		zap.String("format", format),
		zap.Int("rows", len(data.Rows)))

	return &ReportResult{
		FileName:      relPath,
		Format:        format,
		RowCount:      len(data.Rows),
		DownloadToken: token,
		ExpiresAt:     expiresAt,
		GeneratedAt:   time.Now().UTC(),
	}, nil
}

func stringOrEmpty(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
