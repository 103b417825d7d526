package handlers

import (
	"net/http"

	"github.com/campus-card/cardledger/internal/cardledger"
	"github.com/gin-gonic/gin"
)

// ReportHandler serves cross-card ledger reports.
type ReportHandler struct {
	ledger *cardledger.Service
}

// NewReportHandler constructs a ReportHandler.
func NewReportHandler(ledger *cardledger.Service) *ReportHandler {
	return &ReportHandler{ledger: ledger}
}

// KindTotals sums the entries of one kind within [start, end]. With
// detail=true the entries themselves are included, oldest first.
func (h *ReportHandler) KindTotals(c *gin.Context) {
	start, errStart := timeQuery(c, "start")
	end, errEnd := timeQuery(c, "end")
	if errStart != nil || errEnd != nil || start == nil || end == nil {
		badRequest(c, "start and end are required in RFC3339")
		return
	}
	kind := c.Query("kind")
	report, errReport := h.ledger.Report(c.Request.Context(), kind, *start, *end)
	if errReport != nil {
		writeLedgerError(c, errReport, "report failed")
		return
	}
	body := gin.H{
		"kind":  report.Kind,
		"start": report.Start,
		"end":   report.End,
		"count": report.Count,
		"sum":   report.Sum.StringFixed(2),
	}
	if c.Query("detail") == "true" {
		entries, errEntries := h.ledger.EntriesByKindBetween(c.Request.Context(), kind, *start, *end)
		if errEntries != nil {
			writeLedgerError(c, errEntries, "report failed")
			return
		}
		out := make([]gin.H, 0, len(entries))
		for i := range entries {
			out = append(out, formatEntry(&entries[i]))
		}
		body["entries"] = out
	}
	c.JSON(http.StatusOK, body)
}
