package gate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/SmartParkGate/SmartParkGate/internal/capacity"
	"github.com/SmartParkGate/SmartParkGate/internal/common/auth"
	"github.com/SmartParkGate/SmartParkGate/internal/common/config"
	"github.com/SmartParkGate/SmartParkGate/internal/session"
	"github.com/SmartParkGate/SmartParkGate/internal/tariff"
	"github.com/SmartParkGate/SmartParkGate/internal/vehicle"
	"github.com/gin-gonic/gin"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var testAuthCfg = config.AuthConfig{
	Enabled:   true,
	JWTSecret: "test-secret",
}

func newTestRouter(t *testing.T, slots int) (*gin.Engine, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(
		&vehicle.Vehicle{}, &vehicle.Account{},
		&tariff.Tariff{}, &tariff.PolicyLimit{},
		&capacity.ParkingCounter{}, &session.ParkingSession{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	ctx := context.Background()
	tariffs := tariff.NewRepo(db)
	if err := tariffs.EnsureSeeded(ctx, tariff.SeedInput{StandardRate: 30, AuthorizedRate: 20, MaxSessionCost: 1000}); err != nil {
		t.Fatalf("seed tariffs: %v", err)
	}
	pool := capacity.NewSlotPool(db)
	if err := pool.EnsureCounter(ctx, slots); err != nil {
		t.Fatalf("EnsureCounter: %v", err)
	}

	vehicles := vehicle.NewRepo(db, tariffs)
	svc := session.NewService(db, pool, vehicles, nil, time.UTC, nil)

	r := gin.New()
	srv := NewServer(svc, vehicles, nil, testAuthCfg, nil)
	if err := srv.Register(r); err != nil {
		t.Fatalf("Register: %v", err)
	}
	return r, db
}

func do(t *testing.T, r *gin.Engine, method, path, token string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var body map[string]interface{}
	if len(w.Body.Bytes()) > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode %s %s response: %v (%s)", method, path, err, w.Body.String())
		}
	}
	return w, body
}

func adminToken(t *testing.T, roles ...string) string {
	t.Helper()
	token, _, err := auth.GenerateAccessToken(testAuthCfg, "test-admin", roles, time.Hour)
	if err != nil {
		t.Fatalf("GenerateAccessToken: %v", err)
	}
	return token
}

func TestParkingLifecycleRoutes(t *testing.T) {
	r, _ := newTestRouter(t, 5)

	w, body := do(t, r, http.MethodPost, "/api/parking/checkin/aa1111aa", "")
	if w.Code != http.StatusOK {
		t.Fatalf("checkin: expected 200, got %d (%s)", w.Code, w.Body.String())
	}
	sess := body["session"].(map[string]interface{})
	if sess["state"] != "active" || sess["plate"] != "AA1111AA" {
		t.Fatalf("unexpected session payload: %v", sess)
	}
	sessionID := sess["id"].(string)

	// 在场查询
	w, body = do(t, r, http.MethodGet, "/api/parking/open/AA1111AA", "")
	if w.Code != http.StatusOK || body["open"] != true {
		t.Fatalf("open: expected open=true, got %d %v", w.Code, body)
	}

	w, body = do(t, r, http.MethodPost, "/api/parking/checkout/AA1111AA", "")
	if w.Code != http.StatusOK {
		t.Fatalf("checkout: expected 200, got %d (%s)", w.Code, w.Body.String())
	}
	sess = body["session"].(map[string]interface{})
	if sess["state"] != "invoiced" {
		t.Fatalf("expected invoiced, got %v", sess["state"])
	}
	if _, ok := sess["amount_due"].(float64); !ok {
		t.Fatalf("expected amount_due in invoice, got %v", sess)
	}

	w, body = do(t, r, http.MethodPost, "/api/parking/confirm/"+sessionID, "")
	if w.Code != http.StatusOK {
		t.Fatalf("confirm: expected 200, got %d (%s)", w.Code, w.Body.String())
	}
	sess = body["session"].(map[string]interface{})
	if sess["state"] != "confirmed" {
		t.Fatalf("expected confirmed, got %v", sess["state"])
	}

	// 重复确认幂等
	w, _ = do(t, r, http.MethodPost, "/api/parking/confirm-unregistered/"+sessionID, "")
	if w.Code != http.StatusOK {
		t.Fatalf("repeat confirm: expected 200, got %d", w.Code)
	}

	// 确认后不再在场
	w, body = do(t, r, http.MethodGet, "/api/parking/open/AA1111AA", "")
	if w.Code != http.StatusOK || body["open"] != false {
		t.Fatalf("open after confirm: expected open=false, got %d %v", w.Code, body)
	}
}

func TestErrorStatusMapping(t *testing.T) {
	r, db := newTestRouter(t, 1)

	// 没有在场会话就出场
	w, _ := do(t, r, http.MethodPost, "/api/parking/checkout/ZZ9999ZZ", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("checkout unknown: expected 404, got %d", w.Code)
	}

	// 会话不存在就确认
	w, _ = do(t, r, http.MethodPost, "/api/parking/confirm/no-such-session", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("confirm unknown: expected 404, got %d", w.Code)
	}

	// 占满车位后再入场
	w, body := do(t, r, http.MethodPost, "/api/parking/checkin/AA1111AA", "")
	if w.Code != http.StatusOK {
		t.Fatalf("checkin: expected 200, got %d", w.Code)
	}
	w, _ = do(t, r, http.MethodPost, "/api/parking/checkin/BB2222BB", "")
	if w.Code != http.StatusConflict {
		t.Fatalf("checkin over capacity: expected 409, got %d", w.Code)
	}

	// 还没出账就确认
	sess := body["session"].(map[string]interface{})
	w, _ = do(t, r, http.MethodPost, "/api/parking/confirm/"+sess["id"].(string), "")
	if w.Code != http.StatusConflict {
		t.Fatalf("confirm active: expected 409, got %d", w.Code)
	}

	// 封禁车辆
	if err := db.Create(&vehicle.Vehicle{ID: "v-banned", Plate: "CC3333CC", Banned: true}).Error; err != nil {
		t.Fatalf("create banned vehicle: %v", err)
	}
	w, _ = do(t, r, http.MethodPost, "/api/parking/checkin/CC3333CC", "")
	if w.Code != http.StatusForbidden {
		t.Fatalf("checkin banned: expected 403, got %d", w.Code)
	}

	// 识别服务未配置
	w, _ = do(t, r, http.MethodPost, "/api/parking/checkin-image", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("checkin-image without reader: expected 503, got %d", w.Code)
	}
}

func TestAdminRoutesRequireAuth(t *testing.T) {
	r, _ := newTestRouter(t, 3)

	// 无 token
	w, _ := do(t, r, http.MethodGet, "/api/admin/occupied?at=2024.03.05+10:00", "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}

	// 有 token 但角色不够
	w, _ = do(t, r, http.MethodGet, "/api/admin/occupied?at=2024.03.05+10:00", adminToken(t, "viewer"))
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-admin, got %d", w.Code)
	}

	token := adminToken(t, "admin")

	w, body := do(t, r, http.MethodGet, "/api/admin/occupied?at=2024.03.05+10:00", token)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin, got %d (%s)", w.Code, w.Body.String())
	}
	if body["count"].(float64) != 0 {
		t.Fatalf("expected empty lot, got %v", body["count"])
	}

	// 时间格式错误
	w, _ = do(t, r, http.MethodGet, "/api/admin/occupied?at=not-a-time", token)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad timestamp, got %d", w.Code)
	}

	// 封禁/解禁
	w, _ = do(t, r, http.MethodPost, "/api/admin/vehicles/DD4444DD/ban", token)
	if w.Code != http.StatusNotFound {
		t.Fatalf("ban unknown vehicle: expected 404, got %d", w.Code)
	}
	if w, _ = do(t, r, http.MethodPost, "/api/parking/checkin/DD4444DD", ""); w.Code != http.StatusOK {
		t.Fatalf("checkin: expected 200, got %d", w.Code)
	}
	w, body = do(t, r, http.MethodPost, "/api/admin/vehicles/dd4444dd/ban", token)
	if w.Code != http.StatusOK || body["banned"] != true {
		t.Fatalf("ban: expected 200/banned, got %d %v", w.Code, body)
	}
	w, body = do(t, r, http.MethodPost, "/api/admin/vehicles/DD4444DD/unban", token)
	if w.Code != http.StatusOK || body["banned"] != false {
		t.Fatalf("unban: expected 200/unbanned, got %d %v", w.Code, body)
	}
}
