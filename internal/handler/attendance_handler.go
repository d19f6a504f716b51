package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campusflow/sms-api/internal/models"
	"github.com/campusflow/sms-api/internal/service"
	appErrors "github.com/campusflow/sms-api/pkg/errors"
	"github.com/campusflow/sms-api/pkg/response"
)

// AttendanceHandler exposes attendance endpoints.
type AttendanceHandler struct {
	attendance *service.AttendanceService
}

// NewAttendanceHandler constructs AttendanceHandler.
func NewAttendanceHandler(attendance *service.AttendanceService) *AttendanceHandler {
	return &AttendanceHandler{attendance: attendance}
}

// List godoc
// @Summary List attendance records visible to the caller
// @Tags Attendance
// @Produce json
// @Param student_id query string false "Filter by student"
// @Param class_id query string false "Filter by class"
// @Param status query string false "Filter by status"
// @Param start_date query string false "Start date (YYYY-MM-DD)"
// @Param end_date query string false "End date (YYYY-MM-DD)"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /attendance [get]
func (h *AttendanceHandler) List(c *gin.Context) {
	var filter models.AttendanceFilter
	if studentID := c.Query("student_id"); studentID != "" {
		filter.StudentIDs = []string{studentID}
	}
	filter.ClassID = c.Query("class_id")
	filter.Status = models.AttendanceStatus(c.Query("status"))
	filter.StartDate = dateQuery(c, "start_date")
	filter.EndDate = dateQuery(c, "end_date")
	filter.Page, filter.PageSize = pageParams(c)

	result, err := h.attendance.List(c.Request.Context(), principalFromContext(c), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result.Records, &result.Pagination)
}

// Mark godoc
// @Summary Mark attendance for one student
// @Tags Attendance
// @Accept json
// @Produce json
// @Param payload body service.MarkAttendanceRequest true "Attendance payload"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /attendance [post]
func (h *AttendanceHandler) Mark(c *gin.Context) {
	var req service.MarkAttendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	record, err := h.attendance.Mark(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, record)
}

// BulkMark godoc
// @Summary Mark attendance for a whole class in one request
// @Tags Attendance
// @Accept json
// @Produce json
// @Param payload body service.BulkAttendanceRequest true "Bulk attendance payload"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /attendance/bulk [post]
func (h *AttendanceHandler) BulkMark(c *gin.Context) {
	var req service.BulkAttendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	count, err := h.attendance.BulkMark(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, gin.H{"created": count}, nil)
}

// Update godoc
// @Summary Correct an attendance record
// @Tags Attendance
// @Accept json
// @Produce json
// @Param id path string true "Attendance ID"
// @Param payload body service.UpdateAttendanceRequest true "Attendance payload"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /attendance/{id} [put]
func (h *AttendanceHandler) Update(c *gin.Context) {
	var req service.UpdateAttendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	record, err := h.attendance.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// Delete godoc
// @Summary Delete an attendance record
// @Tags Attendance
// @Produce json
// @Param id path string true "Attendance ID"
// @Success 204
// @Security BearerAuth
// @Router /attendance/{id} [delete]
func (h *AttendanceHandler) Delete(c *gin.Context) {
	if err := h.attendance.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// StudentStatistics godoc
// @Summary Attendance statistics for one student
// @Tags Attendance
// @Produce json
// @Param id path string true "Student ID"
// @Param start_date query string false "Start date (YYYY-MM-DD)"
// @Param end_date query string false "End date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /attendance/students/{id}/statistics [get]
func (h *AttendanceHandler) StudentStatistics(c *gin.Context) {
	stats, err := h.attendance.StudentStatistics(c.Request.Context(), principalFromContext(c), c.Param("id"), dateQuery(c, "start_date"), dateQuery(c, "end_date"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil)
}

// ClassStatistics godoc
// @Summary Attendance statistics for one class
// @Tags Attendance
// @Produce json
// @Param id path string true "Class ID"
// @Param start_date query string false "Start date (YYYY-MM-DD)"
// @Param end_date query string false "End date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /attendance/classes/{id}/statistics [get]
func (h *AttendanceHandler) ClassStatistics(c *gin.Context) {
	stats, err := h.attendance.ClassStatistics(c.Request.Context(), c.Param("id"), dateQuery(c, "start_date"), dateQuery(c, "end_date"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil)
}

// ClassRoster godoc
// @Summary Student ids enrolled in a class, for bulk marking forms
// @Tags Attendance
// @Produce json
// @Param id path string true "Class ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /attendance/classes/{id}/roster [get]
func (h *AttendanceHandler) ClassRoster(c *gin.Context) {
	ids, err := h.attendance.ClassRoster(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"student_ids": ids}, nil)
}

// Defaulters godoc
// @Summary Students below the attendance threshold
// @Tags Attendance
// @Produce json
// @Param class_id query string false "Restrict to one class"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /attendance/defaulters [get]
func (h *AttendanceHandler) Defaulters(c *gin.Context) {
	defaulters, err := h.attendance.Defaulters(c.Request.Context(), c.Query("class_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, defaulters, nil)
}
