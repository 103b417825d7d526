package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/campus-card/cardledger/internal/settings"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// SettingsHandler reads and updates runtime ledger settings.
type SettingsHandler struct {
	db *gorm.DB
}

// NewSettingsHandler constructs a SettingsHandler.
func NewSettingsHandler(db *gorm.DB) *SettingsHandler {
	return &SettingsHandler{db: db}
}

// List returns every known setting with its effective value.
func (h *SettingsHandler) List(c *gin.Context) {
	snapshot := settings.Snapshot()
	defaults := map[string]any{
		settings.BatchIssueMaxItemsKey:    settings.DefaultBatchIssueMaxItems,
		settings.VisitorCardValidDaysKey:  settings.DefaultVisitorCardValidDays,
		settings.ReplacementDefaultFeeKey: settings.DefaultReplacementFee,
	}
	out := make([]gin.H, 0, len(settings.Known))
	for _, key := range settings.Known {
		var value any = defaults[key]
		raw, ok := snapshot[key]
		if ok {
			value = raw
		}
		out = append(out, gin.H{"key": key, "value": value, "is_default": !ok})
	}
	c.JSON(http.StatusOK, gin.H{"settings": out, "updated_at": settings.DBConfigUpdatedAt()})
}

type putSettingRequest struct {
	Value json.RawMessage `json:"value"`
}

// Put updates one setting.
func (h *SettingsHandler) Put(c *gin.Context) {
	key := strings.TrimSpace(c.Param("key"))
	if !settings.IsKnown(key) {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown setting"})
		return
	}
	var body putSettingRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil || len(body.Value) == 0 {
		badRequest(c, "invalid json")
		return
	}
	if errPut := settings.Put(c.Request.Context(), h.db, key, body.Value); errPut != nil {
		if errors.Is(errPut, settings.ErrInvalidValue) {
			badRequest(c, errPut.Error())
			return
		}
		log.WithError(errPut).Error("settings update failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update setting failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": key, "value": body.Value})
}
