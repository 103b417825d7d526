package handlers

import (
	"net/http"
	"strings"

	"github.com/campus-card/cardledger/internal/cardledger"
	"github.com/campus-card/cardledger/internal/holders"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// HolderHandler receives holder names from the organisational directory.
type HolderHandler struct {
	directory *holders.Directory
}

// NewHolderHandler constructs a HolderHandler.
func NewHolderHandler(directory *holders.Directory) *HolderHandler {
	return &HolderHandler{directory: directory}
}

type putHolderRequest struct {
	Name string `json:"name"` // Display name.
}

// Put stores or renames a holder.
func (h *HolderHandler) Put(c *gin.Context) {
	holderType, ok := cardledger.ParseHolderType(c.Param("type"))
	if !ok {
		badRequest(c, "unknown holder type")
		return
	}
	var body putHolderRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		badRequest(c, "invalid json")
		return
	}
	if strings.TrimSpace(body.Name) == "" {
		badRequest(c, "missing name")
		return
	}
	entry, errUpsert := h.directory.Upsert(c.Request.Context(), string(holderType), c.Param("id"), body.Name)
	if errUpsert != nil {
		log.WithError(errUpsert).Error("holder upsert failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "save holder failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"holder_type": entry.HolderType,
		"holder_id":   entry.HolderID,
		"name":        entry.Name,
		"updated_at":  entry.UpdatedAt,
	})
}

// Delete forgets a holder.
func (h *HolderHandler) Delete(c *gin.Context) {
	holderType, ok := cardledger.ParseHolderType(c.Param("type"))
	if !ok {
		badRequest(c, "unknown holder type")
		return
	}
	if errDelete := h.directory.Delete(c.Request.Context(), string(holderType), c.Param("id")); errDelete != nil {
		log.WithError(errDelete).Error("holder delete failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete holder failed"})
		return
	}
	c.Status(http.StatusNoContent)
}
