package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/campus-card/cardledger/internal/cardledger"
	dbutil "github.com/campus-card/cardledger/internal/db"
	"github.com/campus-card/cardledger/internal/models"
	"github.com/campus-card/cardledger/internal/settings"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

func setupHandlerDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:handlers_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, errOpen := dbutil.Open(dsn)
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	if errMigrate := dbutil.Migrate(db); errMigrate != nil {
		t.Fatalf("migrate db: %v", errMigrate)
	}
	t.Cleanup(func() {
		if sqlDB, errDB := db.DB(); errDB == nil {
			_ = sqlDB.Close()
		}
		settings.StoreDBConfig(time.Time{}, nil)
	})
	return db
}

// cardRouter mounts the card handler the way the admin routes do, without auth.
func cardRouter(t *testing.T) (*gin.Engine, *gorm.DB, uint64) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := setupHandlerDB(t)
	cardType := models.CardType{Name: "Student card"}
	if errCreate := db.Create(&cardType).Error; errCreate != nil {
		t.Fatalf("create card type: %v", errCreate)
	}

	handler := NewCardHandler(cardledger.New(db))
	router := gin.New()
	router.GET("/cards", handler.List)
	router.POST("/cards", handler.Issue)
	router.POST("/card-batches", handler.BatchIssue)
	router.GET("/cards/:cardNo", handler.Balance)
	router.GET("/cards/:cardNo/transactions", handler.Transactions)
	router.GET("/cards/:cardNo/reconcile", handler.Reconcile)
	router.POST("/cards/:cardNo/recharge", handler.Recharge)
	router.POST("/cards/:cardNo/consume", handler.Consume)
	router.POST("/cards/:cardNo/report-loss", handler.ReportLoss)
	router.POST("/cards/:cardNo/unloss", handler.Unloss)
	router.POST("/cards/:cardNo/freeze", handler.Freeze)
	router.POST("/cards/:cardNo/unfreeze", handler.Unfreeze)
	router.POST("/cards/:cardNo/cancel", handler.Cancel)
	router.POST("/cards/:cardNo/replace", handler.Replace)
	return router, db, cardType.ID
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, errMarshal := json.Marshal(body)
		if errMarshal != nil {
			t.Fatalf("marshal body: %v", errMarshal)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if errDecode := json.Unmarshal(w.Body.Bytes(), &out); errDecode != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), errDecode)
	}
	return out
}

func issueViaAPI(t *testing.T, router http.Handler, typeID uint64, balance string) string {
	t.Helper()
	w := doJSON(t, router, http.MethodPost, "/cards", map[string]any{
		"type_id":         typeID,
		"holder_type":     "STUDENT",
		"holder_id":       "S001",
		"initial_balance": balance,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("issue: expected status 201, got %d: %s", w.Code, w.Body.String())
	}
	cardNo, _ := decodeBody(t, w)["card_no"].(string)
	if cardNo == "" {
		t.Fatalf("issue: missing card_no in %s", w.Body.String())
	}
	return cardNo
}
