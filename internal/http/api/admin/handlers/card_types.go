package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/campus-card/cardledger/internal/cardledger"
	"github.com/campus-card/cardledger/internal/models"
	"github.com/gin-gonic/gin"
)

// CardTypeHandler serves card type reference data.
type CardTypeHandler struct {
	ledger *cardledger.Service
}

// NewCardTypeHandler constructs a CardTypeHandler.
func NewCardTypeHandler(ledger *cardledger.Service) *CardTypeHandler {
	return &CardTypeHandler{ledger: ledger}
}

// cardTypeRequest captures create and update payloads.
type cardTypeRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// List returns all card types.
func (h *CardTypeHandler) List(c *gin.Context) {
	rows, errList := h.ledger.ListCardTypes(c.Request.Context())
	if errList != nil {
		writeLedgerError(c, errList, "list card types failed")
		return
	}
	out := make([]gin.H, 0, len(rows))
	for i := range rows {
		out = append(out, formatCardType(&rows[i]))
	}
	c.JSON(http.StatusOK, gin.H{"card_types": out})
}

// Create adds a card type.
func (h *CardTypeHandler) Create(c *gin.Context) {
	var body cardTypeRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		badRequest(c, "invalid json")
		return
	}
	row, errCreate := h.ledger.CreateCardType(c.Request.Context(), cardledger.CardTypeInput{Name: body.Name, Description: body.Description})
	if errCreate != nil {
		writeLedgerError(c, errCreate, "create card type failed")
		return
	}
	c.JSON(http.StatusCreated, formatCardType(row))
}

// Update replaces a card type's name and description.
func (h *CardTypeHandler) Update(c *gin.Context) {
	id, errParse := strconv.ParseUint(strings.TrimSpace(c.Param("id")), 10, 64)
	if errParse != nil {
		badRequest(c, "invalid id")
		return
	}
	var body cardTypeRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		badRequest(c, "invalid json")
		return
	}
	row, errUpdate := h.ledger.UpdateCardType(c.Request.Context(), id, cardledger.CardTypeInput{Name: body.Name, Description: body.Description})
	if errUpdate != nil {
		writeLedgerError(c, errUpdate, "update card type failed")
		return
	}
	c.JSON(http.StatusOK, formatCardType(row))
}

// Delete removes a card type.
func (h *CardTypeHandler) Delete(c *gin.Context) {
	id, errParse := strconv.ParseUint(strings.TrimSpace(c.Param("id")), 10, 64)
	if errParse != nil {
		badRequest(c, "invalid id")
		return
	}
	if errDelete := h.ledger.DeleteCardType(c.Request.Context(), id); errDelete != nil {
		writeLedgerError(c, errDelete, "delete card type failed")
		return
	}
	c.Status(http.StatusNoContent)
}

func formatCardType(row *models.CardType) gin.H {
	return gin.H{
		"id":          row.ID,
		"name":        row.Name,
		"description": row.Description,
		"created_at":  row.CreatedAt,
		"updated_at":  row.UpdatedAt,
	}
}
