package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campusflow/sms-api/internal/service"
	appErrors "github.com/campusflow/sms-api/pkg/errors"
	"github.com/campusflow/sms-api/pkg/response"
)

// AdminHandler exposes master-only admin account management.
type AdminHandler struct {
	admins *service.AdminService
}

// NewAdminHandler constructs AdminHandler.
func NewAdminHandler(admins *service.AdminService) *AdminHandler {
	return &AdminHandler{admins: admins}
}

// Create godoc
// @Summary Create an admin account (inactive until approved)
// @Tags Admins
// @Accept json
// @Produce json
// @Param payload body service.CreateAdminRequest true "Admin payload"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /admins [post]
func (h *AdminHandler) Create(c *gin.Context) {
	var req service.CreateAdminRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	admin, err := h.admins.CreateAdmin(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, admin)
}

// List godoc
// @Summary List admin accounts
// @Tags Admins
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /admins [get]
func (h *AdminHandler) List(c *gin.Context) {
	admins, err := h.admins.ListAdmins(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, admins, nil)
}

// Approve godoc
// @Summary Activate a pending admin account
// @Tags Admins
// @Produce json
// @Param id path string true "Admin ID"
// @Success 204
// @Security BearerAuth
// @Router /admins/{id}/approve [post]
func (h *AdminHandler) Approve(c *gin.Context) {
	if err := h.admins.ApproveAdmin(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Deactivate godoc
// @Summary Deactivate an admin account
// @Tags Admins
// @Produce json
// @Param id path string true "Admin ID"
// @Success 204
// @Security BearerAuth
// @Router /admins/{id}/deactivate [post]
func (h *AdminHandler) Deactivate(c *gin.Context) {
	if err := h.admins.DeactivateAdmin(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Delete godoc
// @Summary Delete an admin account
// @Tags Admins
// @Produce json
// @Param id path string true "Admin ID"
// @Success 204
// @Security BearerAuth
// @Router /admins/{id} [delete]
func (h *AdminHandler) Delete(c *gin.Context) {
	if err := h.admins.DeleteAdmin(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
