package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campusflow/sms-api/internal/models"
	"github.com/campusflow/sms-api/internal/service"
	appErrors "github.com/campusflow/sms-api/pkg/errors"
	"github.com/campusflow/sms-api/pkg/response"
)

// FeeHandler exposes fee endpoints.
type FeeHandler struct {
	fees *service.FeeService
}

// NewFeeHandler constructs FeeHandler.
func NewFeeHandler(fees *service.FeeService) *FeeHandler {
	return &FeeHandler{fees: fees}
}

// List godoc
// @Summary List fees visible to the caller
// @Tags Fees
// @Produce json
// @Param student_id query string false "Filter by student"
// @Param status query string false "Filter by status"
// @Param academic_year query string false "Filter by academic year"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /fees [get]
func (h *FeeHandler) List(c *gin.Context) {
	var filter models.FeeFilter
	if studentID := c.Query("student_id"); studentID != "" {
		filter.StudentIDs = []string{studentID}
	}
	filter.Status = models.FeeStatus(c.Query("status"))
	filter.AcademicYear = c.Query("academic_year")
	filter.Page, filter.PageSize = pageParams(c)

	result, err := h.fees.List(c.Request.Context(), principalFromContext(c), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result.Fees, &result.Pagination)
}

// Get godoc
// @Summary Get fee detail
// @Tags Fees
// @Produce json
// @Param id path string true "Fee ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /fees/{id} [get]
func (h *FeeHandler) Get(c *gin.Context) {
	fee, err := h.fees.Get(c.Request.Context(), principalFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, fee, nil)
}

// Create godoc
// @Summary Create a fee record
// @Tags Fees
// @Accept json
// @Produce json
// @Param payload body service.CreateFeeRequest true "Fee payload"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /fees [post]
func (h *FeeHandler) Create(c *gin.Context) {
	var req service.CreateFeeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	fee, err := h.fees.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, fee)
}

// Update godoc
// @Summary Update a fee record
// @Tags Fees
// @Accept json
// @Produce json
// @Param id path string true "Fee ID"
// @Param payload body service.UpdateFeeRequest true "Fee payload"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /fees/{id} [put]
func (h *FeeHandler) Update(c *gin.Context) {
	var req service.UpdateFeeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	fee, err := h.fees.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, fee, nil)
}

// Pay godoc
// @Summary Apply a payment to a fee
// @Tags Fees
// @Accept json
// @Produce json
// @Param id path string true "Fee ID"
// @Param payload body service.PayFeeRequest true "Payment payload"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /fees/{id}/pay [post]
func (h *FeeHandler) Pay(c *gin.Context) {
	var req service.PayFeeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	fee, err := h.fees.Pay(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, fee, nil)
}

// Delete godoc
// @Summary Delete a fee without recorded payments
// @Tags Fees
// @Produce json
// @Param id path string true "Fee ID"
// @Success 204
// @Security BearerAuth
// @Router /fees/{id} [delete]
func (h *FeeHandler) Delete(c *gin.Context) {
	if err := h.fees.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Summary godoc
// @Summary School-wide fee collection summary
// @Tags Fees
// @Produce json
// @Param academic_year query string false "Restrict to an academic year"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /fees/summary [get]
func (h *FeeHandler) Summary(c *gin.Context) {
	summary, err := h.fees.Summary(c.Request.Context(), c.Query("academic_year"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}
