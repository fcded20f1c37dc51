package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"hourlog/internal/report"
)

// ---------- Reports ----------

func (h *Handler) Presence(c *gin.Context) {
	p, err := h.engine.DailyPresence(c.Request.Context(), c.Query("date"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

var groupings = map[string]report.GroupKeyFunc{
	"":        report.ByProgram,
	"program": report.ByProgram,
	"term":    report.ByTerm,
}

func (h *Handler) HoursReport(c *gin.Context) {
	keyFn, ok := groupings[c.Query("group")]
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "group must be program or term"})
		return
	}
	rep, err := h.engine.ReportByGroup(c.Request.Context(), keyFn)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rep)
}

// ---------- Exports ----------

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// export renders into memory first so a failure can still be reported as JSON.
func (h *Handler) export(c *gin.Context, filename, contentType string, write func(context.Context, io.Writer) error) {
	var buf bytes.Buffer
	if err := write(c.Request.Context(), &buf); err != nil {
		h.fail(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, contentType, buf.Bytes())
}

func (h *Handler) ExportRecords(c *gin.Context) {
	h.export(c, "registros.csv", "text/csv; charset=utf-8", h.engine.ExportRecordsCSV)
}

func (h *Handler) ExportSummaryCSV(c *gin.Context) {
	h.export(c, "resumen.csv", "text/csv; charset=utf-8", h.engine.ExportSummaryCSV)
}

func (h *Handler) ExportSummaryXLSX(c *gin.Context) {
	h.export(c, "resumen.xlsx", xlsxContentType, h.engine.ExportSummaryXLSX)
}
