package handlers

import (
	"errors"
	"net/http"

	"github.com/campus-card/cardledger/internal/cardledger"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// statusForKind maps ledger error kinds to HTTP statuses.
var statusForKind = map[cardledger.Kind]int{
	cardledger.KindNotFound:            http.StatusNotFound,
	cardledger.KindInvalidArgument:     http.StatusBadRequest,
	cardledger.KindInvalidState:        http.StatusConflict,
	cardledger.KindInsufficientBalance: http.StatusUnprocessableEntity,
}

// writeLedgerError renders err. Ledger errors keep their message and kind;
// anything else is logged and answered with fallback.
func writeLedgerError(c *gin.Context, err error, fallback string) {
	var ledgerErr *cardledger.Error
	if errors.As(err, &ledgerErr) {
		body := gin.H{"error": ledgerErr.Message, "code": string(ledgerErr.Kind)}
		var itemErr *cardledger.BatchItemError
		if errors.As(err, &itemErr) {
			body["item"] = itemErr.Index
		}
		c.JSON(statusForKind[ledgerErr.Kind], body)
		return
	}
	log.WithError(err).WithField("path", c.FullPath()).Error(fallback)
	c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": message, "code": string(cardledger.KindInvalidArgument)})
}
