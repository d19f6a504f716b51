package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campusflow/sms-api/internal/models"
	"github.com/campusflow/sms-api/internal/service"
	appErrors "github.com/campusflow/sms-api/pkg/errors"
	"github.com/campusflow/sms-api/pkg/response"
)

// HomeworkHandler exposes homework and submission endpoints.
type HomeworkHandler struct {
	homework *service.HomeworkService
}

// NewHomeworkHandler constructs HomeworkHandler.
func NewHomeworkHandler(homework *service.HomeworkService) *HomeworkHandler {
	return &HomeworkHandler{homework: homework}
}

// List godoc
// @Summary List homework visible to the caller
// @Tags Homework
// @Produce json
// @Param class_id query string false "Filter by class"
// @Param subject_id query string false "Filter by subject"
// @Param teacher_id query string false "Filter by assigning teacher"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /homework [get]
func (h *HomeworkHandler) List(c *gin.Context) {
	var filter models.HomeworkFilter
	if classID := c.Query("class_id"); classID != "" {
		filter.ClassIDs = []string{classID}
	}
	filter.SubjectID = c.Query("subject_id")
	filter.TeacherID = c.Query("teacher_id")
	filter.Page, filter.PageSize = pageParams(c)

	result, err := h.homework.List(c.Request.Context(), principalFromContext(c), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result.Homework, &result.Pagination)
}

// Get godoc
// @Summary Get homework detail
// @Tags Homework
// @Produce json
// @Param id path string true "Homework ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /homework/{id} [get]
func (h *HomeworkHandler) Get(c *gin.Context) {
	hw, err := h.homework.Get(c.Request.Context(), principalFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, hw, nil)
}

// Create godoc
// @Summary Assign homework
// @Tags Homework
// @Accept json
// @Produce json
// @Param payload body service.CreateHomeworkRequest true "Homework payload"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /homework [post]
func (h *HomeworkHandler) Create(c *gin.Context) {
	var req service.CreateHomeworkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	hw, err := h.homework.Create(c.Request.Context(), principalFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, hw)
}

// Update godoc
// @Summary Update homework (author or admin only)
// @Tags Homework
// @Accept json
// @Produce json
// @Param id path string true "Homework ID"
// @Param payload body service.UpdateHomeworkRequest true "Homework payload"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /homework/{id} [put]
func (h *HomeworkHandler) Update(c *gin.Context) {
	var req service.UpdateHomeworkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	hw, err := h.homework.Update(c.Request.Context(), principalFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, hw, nil)
}

// Delete godoc
// @Summary Delete homework (author or admin only)
// @Tags Homework
// @Produce json
// @Param id path string true "Homework ID"
// @Success 204
// @Security BearerAuth
// @Router /homework/{id} [delete]
func (h *HomeworkHandler) Delete(c *gin.Context) {
	if err := h.homework.Delete(c.Request.Context(), principalFromContext(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Submit godoc
// @Summary Submit homework as the calling student
// @Tags Homework
// @Accept json
// @Produce json
// @Param id path string true "Homework ID"
// @Param payload body service.SubmitHomeworkRequest true "Submission payload"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /homework/{id}/submissions [post]
func (h *HomeworkHandler) Submit(c *gin.Context) {
	var req service.SubmitHomeworkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	submission, err := h.homework.Submit(c.Request.Context(), principalFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, submission)
}

// ListSubmissions godoc
// @Summary List submissions for a homework item (author or admin only)
// @Tags Homework
// @Produce json
// @Param id path string true "Homework ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /homework/{id}/submissions [get]
func (h *HomeworkHandler) ListSubmissions(c *gin.Context) {
	submissions, err := h.homework.ListSubmissions(c.Request.Context(), principalFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, submissions, nil)
}

// GradeSubmission godoc
// @Summary Grade a submission (author or admin only)
// @Tags Homework
// @Accept json
// @Produce json
// @Param submissionId path string true "Submission ID"
// @Param payload body service.GradeSubmissionRequest true "Grade payload"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /homework/submissions/{submissionId}/grade [put]
func (h *HomeworkHandler) GradeSubmission(c *gin.Context) {
	var req service.GradeSubmissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	submission, err := h.homework.GradeSubmission(c.Request.Context(), principalFromContext(c), c.Param("submissionId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, submission, nil)
}
