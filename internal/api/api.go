// Package api exposes the ledger over HTTP with gin.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"hourlog/internal/attendance"
	"hourlog/internal/auth"
	"hourlog/internal/httpmiddleware"
	"hourlog/internal/report"
)

// HealthCheck reports whether one dependency is usable.
type HealthCheck func(ctx context.Context) bool

// Deps are the collaborators the handlers call into.
type Deps struct {
	Service   *attendance.Service
	Engine    *report.Engine
	Operators *auth.Operators
	Signer    *auth.Signer
	Log       logrus.FieldLogger
	Limiter   *httpmiddleware.TokenBucket
	Metrics   http.Handler
	Health    map[string]HealthCheck
}

type Handler struct {
	svc    *attendance.Service
	engine *report.Engine
	ops    *auth.Operators
	signer *auth.Signer
	log    logrus.FieldLogger
	health map[string]HealthCheck
}

func New(d Deps) *Handler {
	log := d.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Handler{svc: d.Service, engine: d.Engine, ops: d.Operators, signer: d.Signer, log: log, health: d.Health}
}

// Router wires every route. Everything under /v1 except login and refresh
// requires an operator access token.
func Router(d Deps) *gin.Engine {
	h := New(d)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.RequestLogger(h.log, "/healthz", "/metrics"))
	r.Use(cors.New(cors.Config{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders: []string{"Content-Disposition"},
		MaxAge:        12 * time.Hour,
	}))
	r.Use(httpmiddleware.SecurityHeaders())
	if d.Limiter != nil {
		r.Use(d.Limiter.GinMiddleware())
	}

	if d.Metrics != nil {
		r.GET("/metrics", gin.WrapH(d.Metrics))
	}
	r.GET("/healthz", h.Healthz)

	v1 := r.Group("/v1")
	v1.POST("/login", h.Login)
	v1.POST("/refresh", h.Refresh)

	authed := v1.Group("", auth.OperatorAuth(d.Signer))
	{
		authed.POST("/subjects", h.RegisterSubject)
		authed.GET("/subjects", h.ListSubjects)
		authed.GET("/subjects/:id", h.GetSubject)
		authed.PUT("/subjects/:id", h.EditSubject)
		authed.POST("/subjects/:id/activate", h.setActive(true))
		authed.POST("/subjects/:id/deactivate", h.setActive(false))
		authed.GET("/subjects/:id/history", h.SubjectHistory)
		authed.GET("/subjects/:id/hours", h.SubjectHours)

		authed.POST("/clock-in", h.ClockIn)
		authed.POST("/clock-out", h.ClockOut)
		authed.POST("/records/manual", h.ManualRecord)

		authed.GET("/presence", h.Presence)
		authed.GET("/reports/hours", h.HoursReport)

		authed.GET("/exports/records.csv", h.ExportRecords)
		authed.GET("/exports/summary.csv", h.ExportSummaryCSV)
		authed.GET("/exports/summary.xlsx", h.ExportSummaryXLSX)
	}
	return r
}

// ---------- Health ----------

func (h *Handler) Healthz(c *gin.Context) {
	status := http.StatusOK
	body := gin.H{"status": "ok"}
	for name, check := range h.health {
		ok := check(c.Request.Context())
		body[name] = ok
		if !ok {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}
	}
	c.JSON(status, body)
}

// ---------- Auth ----------

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	op, err := h.ops.Authenticate(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		h.fail(c, err)
		return
	}
	tokens, err := h.signer.Issue(op.Username, op.Name)
	if err != nil {
		h.log.WithError(err).Error("token issue failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
		return
	}
	c.JSON(http.StatusOK, tokens)
}

func (h *Handler) Refresh(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	tokens, err := h.signer.Refresh(req.RefreshToken)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	c.JSON(http.StatusOK, tokens)
}
