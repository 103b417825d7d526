package admin

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/campus-card/cardledger/internal/cardledger"
	"github.com/campus-card/cardledger/internal/config"
	dbutil "github.com/campus-card/cardledger/internal/db"
	"github.com/campus-card/cardledger/internal/holders"
	"github.com/campus-card/cardledger/internal/http/api/admin/permissions"
	"github.com/campus-card/cardledger/internal/security"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func setupAdminRouter(t *testing.T, jwtCfg config.JWTConfig) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	dsn := fmt.Sprintf("file:admin_%d?mode=memory&cache=shared", time.Now().UnixNano())
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
	})

	router := gin.New()
	RegisterAdminRoutes(router, Deps{
		DB:       db,
		Ledger:   cardledger.New(db),
		Holders:  holders.NewDirectory(db),
		JWT:      jwtCfg,
		Gatherer: prometheus.NewRegistry(),
	})
	return router
}

func tokenFor(t *testing.T, role string) string {
	t.Helper()
	token, errToken := security.GenerateOperatorToken(testSecret, "op-1", "Operator One", role, time.Hour)
	if errToken != nil {
		t.Fatalf("generate token: %v", errToken)
	}
	return token
}

func serve(router http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestAdminRoutesRequireToken(t *testing.T) {
	router := setupAdminRouter(t, config.JWTConfig{Secret: testSecret, Expiry: time.Hour})

	if w := serve(router, http.MethodGet, "/v0/admin/cards", "", ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("missing token: expected status 401, got %d", w.Code)
	}
	if w := serve(router, http.MethodGet, "/v0/admin/cards", "garbage", ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("bad token: expected status 401, got %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/v0/admin/cards", nil)
	req.Header.Set("Authorization", "Basic abc")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("basic auth: expected status 401, got %d", w.Code)
	}

	if w := serve(router, http.MethodGet, "/v0/admin/cards", tokenFor(t, security.RoleViewer), ""); w.Code != http.StatusOK {
		t.Fatalf("viewer list: expected status 200, got %d", w.Code)
	}
}

func TestAdminRoutesEnforceRoles(t *testing.T) {
	router := setupAdminRouter(t, config.JWTConfig{Secret: testSecret, Expiry: time.Hour})
	viewer := tokenFor(t, security.RoleViewer)
	operator := tokenFor(t, security.RoleOperator)
	admin := tokenFor(t, security.RoleAdmin)

	if w := serve(router, http.MethodPost, "/v0/admin/card-types", operator, `{"name":"Student"}`); w.Code != http.StatusForbidden {
		t.Fatalf("operator creating card type: expected status 403, got %d", w.Code)
	}
	if w := serve(router, http.MethodPost, "/v0/admin/card-types", admin, `{"name":"Student"}`); w.Code != http.StatusCreated {
		t.Fatalf("admin creating card type: expected status 201, got %d: %s", w.Code, w.Body.String())
	}

	issue := `{"type_id":1,"holder_type":"STUDENT","holder_id":"S1","initial_balance":"10"}`
	if w := serve(router, http.MethodPost, "/v0/admin/cards", viewer, issue); w.Code != http.StatusForbidden {
		t.Fatalf("viewer issuing: expected status 403, got %d", w.Code)
	}
	w := serve(router, http.MethodPost, "/v0/admin/cards", operator, issue)
	if w.Code != http.StatusCreated {
		t.Fatalf("operator issuing: expected status 201, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"balance":"10.00"`) {
		t.Fatalf("unexpected issue response: %s", w.Body.String())
	}

	if w := serve(router, http.MethodGet, "/v0/admin/settings", operator, ""); w.Code != http.StatusForbidden {
		t.Fatalf("operator reading settings: expected status 403, got %d", w.Code)
	}
}

func TestAdminRoutesAuthDisabled(t *testing.T) {
	router := setupAdminRouter(t, config.JWTConfig{Disabled: true})

	if w := serve(router, http.MethodPost, "/v0/admin/card-types", "", `{"name":"Staff"}`); w.Code != http.StatusCreated {
		t.Fatalf("expected status 201 with auth disabled, got %d", w.Code)
	}
}

func TestAdminRoutesPublicEndpoints(t *testing.T) {
	router := setupAdminRouter(t, config.JWTConfig{Secret: testSecret, Expiry: time.Hour})

	if w := serve(router, http.MethodGet, "/healthz", "", ""); w.Code != http.StatusOK {
		t.Fatalf("healthz: expected status 200, got %d", w.Code)
	}
	if w := serve(router, http.MethodGet, "/metrics", "", ""); w.Code != http.StatusOK {
		t.Fatalf("metrics: expected status 200, got %d", w.Code)
	}
	if w := serve(router, http.MethodGet, "/nope", "", ""); w.Code != http.StatusNotFound {
		t.Fatalf("unknown path: expected status 404, got %d", w.Code)
	}
}

func TestEveryRegisteredAdminRouteHasDefinition(t *testing.T) {
	router := setupAdminRouter(t, config.JWTConfig{Disabled: true})
	definitionMap := permissions.DefinitionMap()

	registered := 0
	for _, route := range router.Routes() {
		if !strings.HasPrefix(route.Path, "/v0/admin/") {
			continue
		}
		registered++
		key := permissions.Key(route.Method, route.Path)
		if _, ok := definitionMap[key]; !ok {
			t.Fatalf("route %q has no permission definition", key)
		}
	}
	if registered != len(definitionMap) {
		t.Fatalf("expected %d admin routes, got %d", len(definitionMap), registered)
	}
}
