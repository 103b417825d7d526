package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/campus-card/cardledger/internal/cardledger"
	"github.com/campus-card/cardledger/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// CardHandler exposes card issuance, balance operations and the card
// lifecycle.
type CardHandler struct {
	ledger *cardledger.Service
}

// NewCardHandler wires a card handler with the ledger service.
func NewCardHandler(ledger *cardledger.Service) *CardHandler {
	return &CardHandler{ledger: ledger}
}

// issueCardRequest captures the payload for issuing one card.
type issueCardRequest struct {
	TypeID         uint64          `json:"type_id"`         // Card type reference.
	HolderType     string          `json:"holder_type"`     // STUDENT/TEACHER/STAFF/VISITOR.
	HolderID       string          `json:"holder_id"`       // External holder identifier.
	InitialBalance decimal.Decimal `json:"initial_balance"` // Optional opening balance.
	Note           string          `json:"note"`            // Optional note on the issue entry.
	ExpireAt       *time.Time      `json:"expire_at"`       // Optional expiry, VISITOR only.
}

func (r issueCardRequest) toIssue() cardledger.IssueRequest {
	return cardledger.IssueRequest{
		TypeID:         r.TypeID,
		HolderType:     r.HolderType,
		HolderID:       r.HolderID,
		InitialBalance: r.InitialBalance,
		Note:           r.Note,
		ExpireAt:       r.ExpireAt,
	}
}

// Issue creates a card.
func (h *CardHandler) Issue(c *gin.Context) {
	var body issueCardRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		badRequest(c, "invalid json")
		return
	}
	card, errIssue := h.ledger.IssueCard(c.Request.Context(), body.toIssue())
	if errIssue != nil {
		writeLedgerError(c, errIssue, "issue card failed")
		return
	}
	c.JSON(http.StatusCreated, formatCard(card))
}

// batchIssueRequest captures the payload for batch issuance.
type batchIssueRequest struct {
	Items []issueCardRequest `json:"items"`
}

// BatchIssue creates all cards of the batch or none.
func (h *CardHandler) BatchIssue(c *gin.Context) {
	var body batchIssueRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		badRequest(c, "invalid json")
		return
	}
	items := make([]cardledger.IssueRequest, 0, len(body.Items))
	for _, item := range body.Items {
		items = append(items, item.toIssue())
	}
	result, errBatch := h.ledger.BatchIssue(c.Request.Context(), items)
	if errBatch != nil {
		writeLedgerError(c, errBatch, "batch issue failed")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"count": result.Count, "card_nos": result.CardNos})
}

// List returns one page of cards filtered by query parameters.
func (h *CardHandler) List(c *gin.Context) {
	page, errPage := intQuery(c, "page", 1)
	if errPage != nil {
		badRequest(c, "invalid page")
		return
	}
	size, errSize := intQuery(c, "size", 10)
	if errSize != nil {
		badRequest(c, "invalid size")
		return
	}
	filter := cardledger.CardFilter{
		CardNo:     c.Query("card_no"),
		HolderType: c.Query("holder_type"),
		HolderID:   c.Query("holder_id"),
		Status:     c.Query("status"),
	}
	result, errList := h.ledger.PageList(c.Request.Context(), filter, page, size)
	if errList != nil {
		writeLedgerError(c, errList, "list cards failed")
		return
	}
	out := make([]gin.H, 0, len(result.Items))
	for i := range result.Items {
		out = append(out, formatCard(&result.Items[i]))
	}
	c.JSON(http.StatusOK, gin.H{"cards": out, "total": result.Total, "page": result.Page, "size": result.Size})
}

// Balance returns the balance view of a card.
func (h *CardHandler) Balance(c *gin.Context) {
	info, errBalance := h.ledger.GetBalance(c.Request.Context(), c.Param("cardNo"))
	if errBalance != nil {
		writeLedgerError(c, errBalance, "query balance failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"card_no":          info.CardNo,
		"balance":          info.Balance.StringFixed(2),
		"status":           info.Status,
		"type_id":          info.TypeID,
		"card_type_name":   info.CardTypeName,
		"holder_type":      info.HolderType,
		"holder_id":        info.HolderID,
		"holder_name":      info.HolderName,
		"expire_at":        info.ExpireAt,
		"last_activity_at": info.LastActivityAt,
	})
}

// Transactions lists the ledger entries of a card, newest first.
func (h *CardHandler) Transactions(c *gin.Context) {
	start, errStart := timeQuery(c, "start")
	if errStart != nil {
		badRequest(c, "invalid start, expected RFC3339")
		return
	}
	end, errEnd := timeQuery(c, "end")
	if errEnd != nil {
		badRequest(c, "invalid end, expected RFC3339")
		return
	}
	entries, errList := h.ledger.GetTransactions(c.Request.Context(), cardledger.TxQuery{
		CardNo: c.Param("cardNo"),
		Kind:   c.Query("kind"),
		Start:  start,
		End:    end,
	})
	if errList != nil {
		writeLedgerError(c, errList, "list transactions failed")
		return
	}
	out := make([]gin.H, 0, len(entries))
	for i := range entries {
		out = append(out, formatEntry(&entries[i]))
	}
	c.JSON(http.StatusOK, gin.H{"transactions": out})
}

// amountRequest captures recharge and consume payloads.
type amountRequest struct {
	Amount   decimal.Decimal `json:"amount"`   // Positive amount.
	Method   string          `json:"method"`   // Recharge source.
	Merchant string          `json:"merchant"` // Consume merchant.
	Note     string          `json:"note"`     // Optional note.
}

// Recharge adds funds to a card.
func (h *CardHandler) Recharge(c *gin.Context) {
	var body amountRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		badRequest(c, "invalid json")
		return
	}
	cardNo := c.Param("cardNo")
	balance, errRecharge := h.ledger.Recharge(c.Request.Context(), cardledger.RechargeRequest{
		CardNo: cardNo,
		Amount: body.Amount,
		Method: body.Method,
		Note:   body.Note,
	})
	if errRecharge != nil {
		writeLedgerError(c, errRecharge, "recharge failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"card_no": cardNo, "balance": balance.StringFixed(2)})
}

// Consume spends funds from a card.
func (h *CardHandler) Consume(c *gin.Context) {
	var body amountRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		badRequest(c, "invalid json")
		return
	}
	cardNo := c.Param("cardNo")
	balance, errConsume := h.ledger.Consume(c.Request.Context(), cardledger.ConsumeRequest{
		CardNo:   cardNo,
		Amount:   body.Amount,
		Merchant: body.Merchant,
		Note:     body.Note,
	})
	if errConsume != nil {
		writeLedgerError(c, errConsume, "consume failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"card_no": cardNo, "balance": balance.StringFixed(2)})
}

// ReportLoss marks a card lost.
func (h *CardHandler) ReportLoss(c *gin.Context) {
	h.transition(c, h.ledger.ReportLoss, "report loss failed")
}

// Unloss restores a lost card.
func (h *CardHandler) Unloss(c *gin.Context) {
	h.transition(c, h.ledger.Unloss, "unloss failed")
}

// Freeze freezes a card.
func (h *CardHandler) Freeze(c *gin.Context) {
	h.transition(c, h.ledger.Freeze, "freeze failed")
}

// Unfreeze restores a frozen card.
func (h *CardHandler) Unfreeze(c *gin.Context) {
	h.transition(c, h.ledger.Unfreeze, "unfreeze failed")
}

func (h *CardHandler) transition(c *gin.Context, fn func(ctx context.Context, cardNo string) error, fallback string) {
	if errTransition := fn(c.Request.Context(), c.Param("cardNo")); errTransition != nil {
		writeLedgerError(c, errTransition, fallback)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// cancelRequest captures the payload for cancelling a card.
type cancelRequest struct {
	Refund bool   `json:"refund"` // Pay the balance out instead of forfeiting it.
	Note   string `json:"note"`   // Optional note.
}

// Cancel cancels a card.
func (h *CardHandler) Cancel(c *gin.Context) {
	var body cancelRequest
	if c.Request.ContentLength != 0 {
		if errBind := c.ShouldBindJSON(&body); errBind != nil {
			badRequest(c, "invalid json")
			return
		}
	}
	errCancel := h.ledger.Cancel(c.Request.Context(), cardledger.CancelRequest{
		CardNo: c.Param("cardNo"),
		Refund: body.Refund,
		Note:   body.Note,
	})
	if errCancel != nil {
		writeLedgerError(c, errCancel, "cancel failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// replaceRequest captures the payload for replacing a card.
type replaceRequest struct {
	ChangeType string           `json:"change_type"` // SUPPLEMENT or TYPE_CHANGE.
	NewTypeID  uint64           `json:"new_type_id"` // Required for TYPE_CHANGE.
	Fee        *decimal.Decimal `json:"fee"`         // Optional fee, defaults to the configured fee.
	Note       string           `json:"note"`        // Optional note on the fee entry.
}

// Replace cancels a card and issues its successor.
func (h *CardHandler) Replace(c *gin.Context) {
	var body replaceRequest
	if c.Request.ContentLength != 0 {
		if errBind := c.ShouldBindJSON(&body); errBind != nil {
			badRequest(c, "invalid json")
			return
		}
	}
	result, errReplace := h.ledger.ReplaceCard(c.Request.Context(), cardledger.ReplaceRequest{
		OldCardNo:  c.Param("cardNo"),
		ChangeType: body.ChangeType,
		NewTypeID:  body.NewTypeID,
		Fee:        body.Fee,
		Note:       body.Note,
	})
	if errReplace != nil {
		writeLedgerError(c, errReplace, "replace card failed")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"new_card_no": result.NewCardNo, "balance": result.Balance.StringFixed(2)})
}

// Reconcile replays the ledger of a card against its balance.
func (h *CardHandler) Reconcile(c *gin.Context) {
	rec, errRec := h.ledger.Reconcile(c.Request.Context(), c.Param("cardNo"))
	if errRec != nil {
		writeLedgerError(c, errRec, "reconcile failed")
		return
	}
	mismatches := make([]gin.H, 0, len(rec.Mismatches))
	for _, m := range rec.Mismatches {
		mismatches = append(mismatches, gin.H{
			"entry_id": m.EntryID,
			"expected": m.Expected.StringFixed(2),
			"recorded": m.Recorded.StringFixed(2),
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"card_no":    rec.CardNo,
		"balance":    rec.Balance.StringFixed(2),
		"ledger_sum": rec.LedgerSum.StringFixed(2),
		"entries":    rec.Entries,
		"consistent": rec.Consistent(),
		"mismatches": mismatches,
	})
}

// formatCard maps a card model into a response payload.
func formatCard(card *models.Card) gin.H {
	return gin.H{
		"id":          card.ID,
		"card_no":     card.CardNo,
		"type_id":     card.TypeID,
		"holder_type": card.HolderType,
		"holder_id":   card.HolderID,
		"status":      card.Status,
		"balance":     card.Balance.StringFixed(2),
		"created_at":  card.CreatedAt,
		"expire_at":   card.ExpireAt,
		"updated_at":  card.UpdatedAt,
	}
}

// formatEntry maps a ledger entry into a response payload.
func formatEntry(entry *models.CardTx) gin.H {
	return gin.H{
		"id":            entry.ID,
		"card_no":       entry.CardNo,
		"kind":          entry.Kind,
		"amount":        entry.Amount.StringFixed(2),
		"balance_after": entry.BalanceAfter.StringFixed(2),
		"merchant":      entry.Merchant,
		"occurred_at":   entry.OccurredAt,
		"note":          entry.Note,
	}
}

func intQuery(c *gin.Context, key string, def int) (int, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

func timeQuery(c *gin.Context, key string) (*time.Time, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return nil, nil
	}
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}
