package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campusflow/sms-api/internal/models"
	"github.com/campusflow/sms-api/internal/service"
	appErrors "github.com/campusflow/sms-api/pkg/errors"
	"github.com/campusflow/sms-api/pkg/response"
)

// MarkHandler exposes exam mark endpoints.
type MarkHandler struct {
	marks *service.MarkService
}

// NewMarkHandler constructs MarkHandler.
func NewMarkHandler(marks *service.MarkService) *MarkHandler {
	return &MarkHandler{marks: marks}
}

// List godoc
// @Summary List marks visible to the caller
// @Tags Marks
// @Produce json
// @Param exam_id query string false "Filter by exam"
// @Param student_id query string false "Filter by student"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /marks [get]
func (h *MarkHandler) List(c *gin.Context) {
	var filter models.MarkFilter
	filter.ExamID = c.Query("exam_id")
	if studentID := c.Query("student_id"); studentID != "" {
		filter.StudentIDs = []string{studentID}
	}
	filter.Page, filter.PageSize = pageParams(c)

	result, err := h.marks.List(c.Request.Context(), principalFromContext(c), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result.Marks, &result.Pagination)
}

// Get godoc
// @Summary Get mark detail
// @Tags Marks
// @Produce json
// @Param id path string true "Mark ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /marks/{id} [get]
func (h *MarkHandler) Get(c *gin.Context) {
	mark, err := h.marks.Get(c.Request.Context(), principalFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, mark, nil)
}

// Record godoc
// @Summary Record a mark for one student
// @Tags Marks
// @Accept json
// @Produce json
// @Param payload body service.RecordMarkRequest true "Mark payload"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /marks [post]
func (h *MarkHandler) Record(c *gin.Context) {
	var req service.RecordMarkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	mark, err := h.marks.Record(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, mark)
}

// BulkRecord godoc
// @Summary Record marks for many students, reporting per-row failures
// @Tags Marks
// @Accept json
// @Produce json
// @Param payload body service.BulkMarkRequest true "Bulk mark payload"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /marks/bulk [post]
func (h *MarkHandler) BulkRecord(c *gin.Context) {
	var req service.BulkMarkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.marks.BulkRecord(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, result, nil)
}

// Update godoc
// @Summary Correct a recorded mark
// @Tags Marks
// @Accept json
// @Produce json
// @Param id path string true "Mark ID"
// @Param payload body service.UpdateMarkRequest true "Mark payload"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /marks/{id} [put]
func (h *MarkHandler) Update(c *gin.Context) {
	var req service.UpdateMarkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	mark, err := h.marks.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, mark, nil)
}

// Delete godoc
// @Summary Delete a mark
// @Tags Marks
// @Produce json
// @Param id path string true "Mark ID"
// @Success 204
// @Security BearerAuth
// @Router /marks/{id} [delete]
func (h *MarkHandler) Delete(c *gin.Context) {
	if err := h.marks.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// StudentPerformance godoc
// @Summary Cross-exam performance roll-up for one student
// @Tags Marks
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /marks/students/{id}/performance [get]
func (h *MarkHandler) StudentPerformance(c *gin.Context) {
	performance, err := h.marks.StudentPerformance(c.Request.Context(), principalFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, performance, nil)
}
