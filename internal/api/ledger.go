package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"hourlog/internal/attendance"
)

// ---------- Subjects ----------

type subjectRequest struct {
	attendance.SubjectInput
	Active *bool `json:"active"`
}

func (h *Handler) RegisterSubject(c *gin.Context) {
	var req subjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	subj, err := h.svc.RegisterSubject(c.Request.Context(), req.SubjectInput)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, subj)
}

// ListSubjects returns every subject; ?active=true or false filters.
func (h *Handler) ListSubjects(c *gin.Context) {
	subjects, err := h.svc.ListSubjects(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	if v := c.Query("active"); v == "true" || v == "false" {
		want := v == "true"
		filtered := subjects[:0]
		for _, s := range subjects {
			if s.Active == want {
				filtered = append(filtered, s)
			}
		}
		subjects = filtered
	}
	c.JSON(http.StatusOK, gin.H{"subjects": subjects})
}

func (h *Handler) GetSubject(c *gin.Context) {
	subj, err := h.svc.GetSubject(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, subj)
}

func (h *Handler) EditSubject(c *gin.Context) {
	var req subjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	subj, err := h.svc.EditSubject(c.Request.Context(), c.Param("id"), req.SubjectInput, req.Active)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, subj)
}

func (h *Handler) setActive(active bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		subj, err := h.svc.SetActive(c.Request.Context(), c.Param("id"), active)
		if err != nil {
			h.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, subj)
	}
}

func (h *Handler) SubjectHistory(c *gin.Context) {
	hist, err := h.engine.SubjectHistory(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, hist)
}

func (h *Handler) SubjectHours(c *gin.Context) {
	ctx := c.Request.Context()
	subj, err := h.svc.GetSubject(ctx, c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	total, err := h.engine.CachedTotalHours(ctx, subj.ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"subject_id": subj.ID, "total_hours": total})
}

// ---------- Clock ----------

type clockRequest struct {
	SubjectID string `json:"subject_id" binding:"required"`
	Notes     string `json:"notes"`
}

func (h *Handler) ClockIn(c *gin.Context) {
	var req clockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rec, err := h.svc.ClockIn(c.Request.Context(), req.SubjectID, req.Notes)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

func (h *Handler) ClockOut(c *gin.Context) {
	var req clockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rec, err := h.svc.ClockOut(c.Request.Context(), req.SubjectID, req.Notes)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *Handler) ManualRecord(c *gin.Context) {
	var req attendance.ManualEntry
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rec, err := h.svc.AddManualRecord(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}
