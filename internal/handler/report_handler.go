package handler

import (
	"net/http"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/campusflow/sms-api/internal/models"
	"github.com/campusflow/sms-api/internal/service"
	appErrors "github.com/campusflow/sms-api/pkg/errors"
	"github.com/campusflow/sms-api/pkg/response"
)

// ReportHandler exposes export generation and signed downloads.
type ReportHandler struct {
	reports *service.ReportService
}

// NewReportHandler constructs ReportHandler.
func NewReportHandler(reports *service.ReportService) *ReportHandler {
	return &ReportHandler{reports: reports}
}

// Attendance godoc
// @Summary Export attendance records
// @Tags Reports
// @Produce json
// @Param format query string false "csv or pdf"
// @Param class_id query string false "Filter by class"
// @Param start_date query string false "Start date (YYYY-MM-DD)"
// @Param end_date query string false "End date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /reports/attendance [get]
func (h *ReportHandler) Attendance(c *gin.Context) {
	var filter models.AttendanceFilter
	filter.ClassID = c.Query("class_id")
	filter.StartDate = dateQuery(c, "start_date")
	filter.EndDate = dateQuery(c, "end_date")

	result, err := h.reports.AttendanceReport(c.Request.Context(), filter, c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Fees godoc
// @Summary Export fee records
// @Tags Reports
// @Produce json
// @Param format query string false "csv or pdf"
// @Param status query string false "Filter by status"
// @Param academic_year query string false "Filter by academic year"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /reports/fees [get]
func (h *ReportHandler) Fees(c *gin.Context) {
	var filter models.FeeFilter
	filter.Status = models.FeeStatus(c.Query("status"))
	filter.AcademicYear = c.Query("academic_year")

	result, err := h.reports.FeeReport(c.Request.Context(), filter, c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Marks godoc
// @Summary Export mark records
// @Tags Reports
// @Produce json
// @Param format query string false "csv or pdf"
// @Param exam_id query string false "Filter by exam"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /reports/marks [get]
func (h *ReportHandler) Marks(c *gin.Context) {
	var filter models.MarkFilter
	filter.ExamID = c.Query("exam_id")

	result, err := h.reports.MarkReport(c.Request.Context(), filter, c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Download godoc
// @Summary Download a generated report with a signed token
// @Tags Reports
// @Produce octet-stream
// @Param token query string true "Signed download token"
// @Success 200
// @Router /reports/download [get]
func (h *ReportHandler) Download(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}
	file, relPath, err := h.reports.Open(token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close() //nolint:errcheck

	c.Header("Content-Disposition", `attachment; filename="`+filepath.Base(relPath)+`"`)
	c.Header("Content-Type", "application/octet-stream")
	modTime := time.Time{}
	if info, err := file.Stat(); err == nil {
		modTime = info.ModTime()
	}
	http.ServeContent(c.Writer, c.Request, filepath.Base(relPath), modTime, file)
}
