package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campusflow/sms-api/internal/models"
	"github.com/campusflow/sms-api/internal/service"
	appErrors "github.com/campusflow/sms-api/pkg/errors"
	"github.com/campusflow/sms-api/pkg/response"
)

// LeaveHandler exposes leave request endpoints.
type LeaveHandler struct {
	leaves *service.LeaveService
}

// NewLeaveHandler constructs LeaveHandler.
func NewLeaveHandler(leaves *service.LeaveService) *LeaveHandler {
	return &LeaveHandler{leaves: leaves}
}

// List godoc
// @Summary List leave requests visible to the caller
// @Tags Leaves
// @Produce json
// @Param student_id query string false "Filter by student"
// @Param status query string false "Filter by status"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /leaves [get]
func (h *LeaveHandler) List(c *gin.Context) {
	var filter models.LeaveFilter
	if studentID := c.Query("student_id"); studentID != "" {
		filter.StudentIDs = []string{studentID}
	}
	filter.Status = models.LeaveStatus(c.Query("status"))
	filter.Page, filter.PageSize = pageParams(c)

	result, err := h.leaves.List(c.Request.Context(), principalFromContext(c), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result.Requests, &result.Pagination)
}

// Get godoc
// @Summary Get one leave request
// @Tags Leaves
// @Produce json
// @Param id path string true "Leave ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /leaves/{id} [get]
func (h *LeaveHandler) Get(c *gin.Context) {
	leave, err := h.leaves.Get(c.Request.Context(), principalFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, leave, nil)
}

// Create godoc
// @Summary File a leave request
// @Tags Leaves
// @Accept json
// @Produce json
// @Param payload body service.CreateLeaveRequest true "Leave payload"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /leaves [post]
func (h *LeaveHandler) Create(c *gin.Context) {
	var req service.CreateLeaveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	leave, err := h.leaves.Create(c.Request.Context(), principalFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, leave)
}

// Review godoc
// @Summary Approve or reject a pending leave request
// @Tags Leaves
// @Accept json
// @Produce json
// @Param id path string true "Leave ID"
// @Param payload body service.ReviewLeaveRequest true "Review payload"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /leaves/{id}/review [put]
func (h *LeaveHandler) Review(c *gin.Context) {
	var req service.ReviewLeaveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	leave, err := h.leaves.Review(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, leave, nil)
}

// Delete godoc
// @Summary Withdraw or delete a leave request
// @Tags Leaves
// @Produce json
// @Param id path string true "Leave ID"
// @Success 204
// @Security BearerAuth
// @Router /leaves/{id} [delete]
func (h *LeaveHandler) Delete(c *gin.Context) {
	if err := h.leaves.Delete(c.Request.Context(), principalFromContext(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
