package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campusflow/sms-api/internal/service"
	appErrors "github.com/campusflow/sms-api/pkg/errors"
	"github.com/campusflow/sms-api/pkg/response"
)

// ParentHandler exposes parent endpoints.
type ParentHandler struct {
	parents *service.ParentService
}

// NewParentHandler constructs ParentHandler.
func NewParentHandler(parents *service.ParentService) *ParentHandler {
	return &ParentHandler{parents: parents}
}

// List godoc
// @Summary List parents
// @Tags Parents
// @Produce json
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /parents [get]
func (h *ParentHandler) List(c *gin.Context) {
	page, size := pageParams(c)
	result, err := h.parents.List(c.Request.Context(), page, size)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result.Parents, &result.Pagination)
}

// Get godoc
// @Summary Get a parent with linked children
// @Tags Parents
// @Produce json
// @Param id path string true "Parent ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /parents/{id} [get]
func (h *ParentHandler) Get(c *gin.Context) {
	parent, err := h.parents.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, parent, nil)
}

// Create godoc
// @Summary Create a parent with a login account and child links
// @Tags Parents
// @Accept json
// @Produce json
// @Param payload body service.CreateParentRequest true "Parent payload"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /parents [post]
func (h *ParentHandler) Create(c *gin.Context) {
	var req service.CreateParentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	parent, err := h.parents.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, parent)
}

// Update godoc
// @Summary Update a parent
// @Tags Parents
// @Accept json
// @Produce json
// @Param id path string true "Parent ID"
// @Param payload body service.UpdateParentRequest true "Parent payload"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /parents/{id} [put]
func (h *ParentHandler) Update(c *gin.Context) {
	var req service.UpdateParentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	parent, err := h.parents.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, parent, nil)
}

// Delete godoc
// @Summary Delete a parent
// @Tags Parents
// @Produce json
// @Param id path string true "Parent ID"
// @Success 204
// @Security BearerAuth
// @Router /parents/{id} [delete]
func (h *ParentHandler) Delete(c *gin.Context) {
	if err := h.parents.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// LinkStudent godoc
// @Summary Link a student to a parent
// @Tags Parents
// @Accept json
// @Produce json
// @Param id path string true "Parent ID"
// @Param payload body service.LinkStudentRequest true "Link payload"
// @Success 204
// @Security BearerAuth
// @Router /parents/{id}/students [post]
func (h *ParentHandler) LinkStudent(c *gin.Context) {
	var req service.LinkStudentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if err := h.parents.LinkStudent(c.Request.Context(), c.Param("id"), req); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// UnlinkStudent godoc
// @Summary Remove a parent-student link
// @Tags Parents
// @Produce json
// @Param id path string true "Parent ID"
// @Param studentId path string true "Student ID"
// @Success 204
// @Security BearerAuth
// @Router /parents/{id}/students/{studentId} [delete]
func (h *ParentHandler) UnlinkStudent(c *gin.Context) {
	if err := h.parents.UnlinkStudent(c.Request.Context(), c.Param("id"), c.Param("studentId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
