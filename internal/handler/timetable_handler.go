package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/campusflow/sms-api/internal/models"
	"github.com/campusflow/sms-api/internal/service"
	appErrors "github.com/campusflow/sms-api/pkg/errors"
	"github.com/campusflow/sms-api/pkg/response"
)

// TimetableHandler exposes timetable endpoints.
type TimetableHandler struct {
	timetable *service.TimetableService
}

// NewTimetableHandler constructs TimetableHandler.
func NewTimetableHandler(timetable *service.TimetableService) *TimetableHandler {
	return &TimetableHandler{timetable: timetable}
}

// List godoc
// @Summary List timetable entries
// @Tags Timetable
// @Produce json
// @Param class_id query string false "Filter by class"
// @Param teacher_id query string false "Filter by teacher"
// @Param day query string false "Filter by weekday"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /timetable [get]
func (h *TimetableHandler) List(c *gin.Context) {
	var filter models.TimetableFilter
	filter.ClassID = c.Query("class_id")
	filter.TeacherID = c.Query("teacher_id")
	filter.Day = strings.ToLower(c.Query("day"))

	entries, err := h.timetable.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}

// Get godoc
// @Summary Get one timetable entry
// @Tags Timetable
// @Produce json
// @Param id path string true "Entry ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /timetable/{id} [get]
func (h *TimetableHandler) Get(c *gin.Context) {
	entry, err := h.timetable.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entry, nil)
}

// Create godoc
// @Summary Create a timetable entry
// @Tags Timetable
// @Accept json
// @Produce json
// @Param payload body service.CreateTimetableRequest true "Entry payload"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /timetable [post]
func (h *TimetableHandler) Create(c *gin.Context) {
	var req service.CreateTimetableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	entry, err := h.timetable.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, entry)
}

// Update godoc
// @Summary Update a timetable entry
// @Tags Timetable
// @Accept json
// @Produce json
// @Param id path string true "Entry ID"
// @Param payload body service.UpdateTimetableRequest true "Entry payload"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /timetable/{id} [put]
func (h *TimetableHandler) Update(c *gin.Context) {
	var req service.UpdateTimetableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	entry, err := h.timetable.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entry, nil)
}

// Delete godoc
// @Summary Delete a timetable entry
// @Tags Timetable
// @Produce json
// @Param id path string true "Entry ID"
// @Success 204
// @Security BearerAuth
// @Router /timetable/{id} [delete]
func (h *TimetableHandler) Delete(c *gin.Context) {
	if err := h.timetable.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
