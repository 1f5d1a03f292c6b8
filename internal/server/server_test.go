package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"fintrek/internal/bankclient"
	"fintrek/internal/credential"
	"fintrek/internal/logger"
	"fintrek/internal/models"
	"fintrek/internal/ratelimit"
	"fintrek/internal/services"
	"fintrek/internal/testutil"
	"fintrek/internal/token"
	"fintrek/internal/validator"
)

const testPassword = "Gr8!Ledger#Pass"

// testApp holds the full application stack for end-to-end tests.
type testApp struct {
	DB     *gorm.DB
	Router *gin.Engine
}

func init() {
	gin.SetMode(gin.TestMode)
	logger.Init("test")
	validator.Register()
}

func setupApp(t *testing.T, mutate func(*Options)) *testApp {
	t.Helper()

	db := testutil.SetupTestDB(t)
	t.Cleanup(func() { testutil.TeardownTestDB(t, db) })

	tokens := token.NewService("server-test-signing-secret-0123456789", "fintrek-test", 30*time.Minute, 24*time.Hour)
	cipher, err := token.NewCipher("server-test-encryption-key-012345678")
	if err != nil {
		t.Fatalf("NewCipher() error: %v", err)
	}

	svc := NewServices(db, Deps{
		Hasher:     credential.NewHasher(4),
		Tokens:     tokens,
		Cipher:     cipher,
		BankClient: bankclient.NewFixtureClient(),
		Lockout:    services.LockoutPolicy{MaxAttempts: 5, Duration: 15 * time.Minute},
	})

	opts := Options{
		CORSOrigins: []string{"http://localhost:3000"},
		Tokens:      tokens,
		Limiter:     ratelimit.NewMemoryLimiter(),
	}
	if mutate != nil {
		mutate(&opts)
	}

	return &testApp{DB: db, Router: NewRouter(svc, opts)}
}

// request makes an HTTP request to the test router and returns the recorder.
func (app *testApp) request(method, path, body, accessToken string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}
	rec := httptest.NewRecorder()
	app.Router.ServeHTTP(rec, req)
	return rec
}

func parseJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var result map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, rec.Body.String())
	}
	return result
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	errObj, ok := parseJSON(t, rec)["error"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected error object, got %s", rec.Body.String())
	}
	code, _ := errObj["code"].(string)
	return code
}

// registerUser registers a new user and returns the access token, refresh token and user ID.
func (app *testApp) registerUser(t *testing.T, email string) (accessToken, refreshToken, userID string) {
	t.Helper()
	body := fmt.Sprintf(`{"email":%q,"password":%q,"first_name":"Test","last_name":"User"}`, email, testPassword)
	rec := app.request("POST", "/api/v1/auth/register", body, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("register failed: %d %s", rec.Code, rec.Body.String())
	}
	result := parseJSON(t, rec)
	tokens := result["tokens"].(map[string]interface{})
	user := result["user"].(map[string]interface{})
	return tokens["access_token"].(string), tokens["refresh_token"].(string), user["id"].(string)
}

func (app *testApp) login(email, password string) *httptest.ResponseRecorder {
	body := fmt.Sprintf(`{"email":%q,"password":%q}`, email, password)
	return app.request("POST", "/api/v1/auth/login", body, "")
}

func TestHealth(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		app := setupApp(t, nil)
		rec := app.request("GET", "/api/health", "", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
			t.Error("expected security headers on every response")
		}
	})

	t.Run("storage down", func(t *testing.T) {
		app := setupApp(t, func(o *Options) {
			o.Health = func(context.Context) error { return errors.New("connection refused") }
		})
		rec := app.request("GET", "/api/health", "", "")
		if rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("expected 503, got %d", rec.Code)
		}
	})
}

func TestAuthFlow_RegisterLoginProfileRefresh(t *testing.T) {
	app := setupApp(t, nil)

	accessToken, refreshToken, userID := app.registerUser(t, "auth@test.com")
	if accessToken == "" || refreshToken == "" || userID == "" {
		t.Fatal("expected tokens and user id from registration")
	}

	rec := app.login("AUTH@test.com", testPassword)
	if rec.Code != http.StatusOK {
		t.Fatalf("login failed: %d %s", rec.Code, rec.Body.String())
	}

	rec = app.request("GET", "/api/v1/profile", "", accessToken)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	user := parseJSON(t, rec)["user"].(map[string]interface{})
	if user["email"] != "auth@test.com" {
		t.Errorf("expected email auth@test.com, got %v", user["email"])
	}

	// A refresh token is not an access token.
	rec = app.request("GET", "/api/v1/profile", "", refreshToken)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected refresh token rejected as access, got %d", rec.Code)
	}

	rec = app.request("POST", "/api/v1/auth/refresh", fmt.Sprintf(`{"refresh_token":%q}`, refreshToken), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("refresh failed: %d %s", rec.Code, rec.Body.String())
	}
	newAccess := parseJSON(t, rec)["tokens"].(map[string]interface{})["access_token"].(string)

	rec = app.request("GET", "/api/v1/profile", "", newAccess)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with refreshed token, got %d", rec.Code)
	}

	// An access token cannot be used to refresh.
	rec = app.request("POST", "/api/v1/auth/refresh", fmt.Sprintf(`{"refresh_token":%q}`, accessToken), "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected access token rejected for refresh, got %d", rec.Code)
	}
}

func TestAuthFlow_Lockout(t *testing.T) {
	app := setupApp(t, nil)
	app.registerUser(t, "lock@test.com")

	for i := 1; i <= 4; i++ {
		rec := app.login("lock@test.com", "Wrong!Pass9x")
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: expected 401, got %d", i, rec.Code)
		}
		if code := errorCode(t, rec); code != "INVALID_CREDENTIALS" {
			t.Fatalf("attempt %d: expected INVALID_CREDENTIALS, got %s", i, code)
		}
	}

	rec := app.login("lock@test.com", "Wrong!Pass9x")
	if rec.Code != http.StatusLocked {
		t.Fatalf("5th attempt: expected 423, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After on lockout")
	}

	// The correct password is refused while locked.
	rec = app.login("lock@test.com", testPassword)
	if rec.Code != http.StatusLocked {
		t.Fatalf("expected 423 while locked, got %d", rec.Code)
	}

	var user models.User
	if err := app.DB.Where("email = ?", "lock@test.com").First(&user).Error; err != nil {
		t.Fatalf("load user: %v", err)
	}
	if user.FailedLoginAttempts != 5 {
		t.Errorf("expected counter to stay at 5, got %d", user.FailedLoginAttempts)
	}

	// Once the window has passed the correct password succeeds and resets.
	past := time.Now().Add(-time.Minute)
	if err := app.DB.Model(&user).Update("locked_until", past).Error; err != nil {
		t.Fatalf("expire lock: %v", err)
	}
	rec = app.login("lock@test.com", testPassword)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected login after lock expiry, got %d: %s", rec.Code, rec.Body.String())
	}
	// Fresh struct: gorm leaves a stale pointer in place when the column is NULL.
	var reloaded models.User
	if err := app.DB.First(&reloaded, "id = ?", user.ID).Error; err != nil {
		t.Fatalf("reload user: %v", err)
	}
	if reloaded.FailedLoginAttempts != 0 || reloaded.LockedUntil != nil {
		t.Errorf("expected counter reset, got %d / %v", reloaded.FailedLoginAttempts, reloaded.LockedUntil)
	}
}

func TestAuthFlow_RegisterValidation(t *testing.T) {
	app := setupApp(t, nil)
	app.registerUser(t, "dup@test.com")

	rec := app.request("POST", "/api/v1/auth/register",
		fmt.Sprintf(`{"email":"dup@test.com","password":%q}`, testPassword), "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}

	rec = app.request("POST", "/api/v1/auth/register", `{"email":"weak@test.com","password":"password"}`, "")
	if rec.Code != http.StatusBadRequest || errorCode(t, rec) != "WEAK_PASSWORD" {
		t.Fatalf("expected WEAK_PASSWORD, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestAuthRateLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	app := setupApp(t, func(o *Options) {
		o.Limiter = ratelimit.NewRedisLimiter(client, "test:")
		o.AuthRateLimit = 3
	})

	for i := 0; i < 3; i++ {
		rec := app.login("nobody@test.com", "Wrong!Pass9x")
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("request %d: expected 401, got %d", i+1, rec.Code)
		}
	}
	rec := app.login("nobody@test.com", "Wrong!Pass9x")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if errorCode(t, rec) != "RATE_LIMITED" {
		t.Error("expected RATE_LIMITED")
	}
}

func TestAccountAndTransactionFlow(t *testing.T) {
	app := setupApp(t, nil)
	accessToken, _, _ := app.registerUser(t, "flow@test.com")

	rec := app.request("POST", "/api/v1/accounts",
		`{"name":"Wallet","type":"cash","currency":"RUB","initial_balance":"1000.00"}`, accessToken)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create account: %d %s", rec.Code, rec.Body.String())
	}
	accountID := parseJSON(t, rec)["account"].(map[string]interface{})["id"].(string)

	rec = app.request("POST", "/api/v1/transactions",
		fmt.Sprintf(`{"account_id":%q,"type":"expense","amount":"250.40","description":"Groceries","date":"2024-03-01"}`, accountID), accessToken)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create transaction: %d %s", rec.Code, rec.Body.String())
	}
	txID := parseJSON(t, rec)["transaction"].(map[string]interface{})["id"].(string)

	balance := func() decimal.Decimal {
		t.Helper()
		rec := app.request("GET", "/api/v1/accounts/"+accountID, "", accessToken)
		if rec.Code != http.StatusOK {
			t.Fatalf("get account: %d", rec.Code)
		}
		raw := parseJSON(t, rec)["account"].(map[string]interface{})["balance"].(string)
		return decimal.RequireFromString(raw)
	}
	if got := balance(); !got.Equal(decimal.RequireFromString("749.60")) {
		t.Errorf("expected balance 749.60 after expense, got %s", got)
	}

	rec = app.request("GET", "/api/v1/accounts/"+accountID+"/transactions?type=expense", "", accessToken)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: %d", rec.Code)
	}
	if n := len(parseJSON(t, rec)["data"].([]interface{})); n != 1 {
		t.Errorf("expected 1 expense, got %d", n)
	}

	rec = app.request("DELETE", "/api/v1/transactions/"+txID, "", accessToken)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete: %d %s", rec.Code, rec.Body.String())
	}
	if got := balance(); !got.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("expected balance restored to 1000, got %s", got)
	}

	// Another user sees nothing.
	otherToken, _, _ := app.registerUser(t, "other@test.com")
	rec = app.request("GET", "/api/v1/accounts/"+accountID, "", otherToken)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for foreign account, got %d", rec.Code)
	}
}

func TestTransferFlow(t *testing.T) {
	app := setupApp(t, nil)
	accessToken, _, _ := app.registerUser(t, "transfer@test.com")

	createAccount := func(name, balance string) string {
		t.Helper()
		body := fmt.Sprintf(`{"name":%q,"type":"cash","currency":"RUB","initial_balance":%q}`, name, balance)
		rec := app.request("POST", "/api/v1/accounts", body, accessToken)
		if rec.Code != http.StatusCreated {
			t.Fatalf("create account: %d %s", rec.Code, rec.Body.String())
		}
		return parseJSON(t, rec)["account"].(map[string]interface{})["id"].(string)
	}
	fromID := createAccount("Wallet", "500.00")
	toID := createAccount("Savings", "0")

	rec := app.request("POST", "/api/v1/transactions/transfer",
		fmt.Sprintf(`{"from_account_id":%q,"to_account_id":%q,"amount":"120.50"}`, fromID, toID), accessToken)
	if rec.Code != http.StatusCreated {
		t.Fatalf("transfer: %d %s", rec.Code, rec.Body.String())
	}
	transfer := parseJSON(t, rec)["transfer"].(map[string]interface{})
	outgoing := transfer["outgoing"].(map[string]interface{})
	if outgoing["related_account_id"] != toID {
		t.Errorf("expected outgoing leg linked to %s, got %v", toID, outgoing["related_account_id"])
	}

	var from, to models.Account
	app.DB.First(&from, "id = ?", fromID)
	app.DB.First(&to, "id = ?", toID)
	if !from.Balance.Equal(decimal.RequireFromString("379.50")) || !to.Balance.Equal(decimal.RequireFromString("120.50")) {
		t.Errorf("expected balances 379.50 / 120.50, got %s / %s", from.Balance, to.Balance)
	}

	rec = app.request("POST", "/api/v1/transactions/transfer",
		fmt.Sprintf(`{"from_account_id":%q,"to_account_id":%q,"amount":"1000"}`, fromID, toID), accessToken)
	if rec.Code != http.StatusBadRequest || errorCode(t, rec) != "INSUFFICIENT_BALANCE" {
		t.Errorf("expected INSUFFICIENT_BALANCE, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestBankSyncFlow(t *testing.T) {
	app := setupApp(t, nil)
	accessToken, _, userID := app.registerUser(t, "sync@test.com")

	rec := app.request("POST", "/api/v1/bank-connections",
		`{"provider":"vbank","bank_name":"Virtual Bank","consent_token":"consent-abc"}`, accessToken)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create connection: %d %s", rec.Code, rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), "consent-abc") {
		t.Error("consent token leaked")
	}

	for i := 0; i < 2; i++ {
		rec = app.request("POST", "/api/v1/vbank/sync-accounts", "", accessToken)
		if rec.Code != http.StatusOK {
			t.Fatalf("sync accounts (%d): %d %s", i+1, rec.Code, rec.Body.String())
		}
	}
	result := parseJSON(t, rec)["result"].(map[string]interface{})
	if result["created"] != float64(0) || result["updated"] != float64(2) {
		t.Errorf("expected second sync to update only, got %v", result)
	}

	var synced models.Account
	if err := app.DB.Where("user_id = ? AND external_id = ?", userID, "mock_acc_1").First(&synced).Error; err != nil {
		t.Fatalf("load synced account: %v", err)
	}

	path := "/api/v1/vbank/sync-transactions?account_id=" + synced.ID
	for i := 0; i < 2; i++ {
		rec = app.request("POST", path, "", accessToken)
		if rec.Code != http.StatusOK {
			t.Fatalf("sync transactions (%d): %d %s", i+1, rec.Code, rec.Body.String())
		}
	}

	var count int64
	app.DB.Model(&models.Transaction{}).Where("account_id = ?", synced.ID).Count(&count)
	if count != 3 {
		t.Errorf("expected 3 imported transactions after two syncs, got %d", count)
	}

	var expense models.Transaction
	if err := app.DB.Where("external_id = ?", "mock_acc_1:mock_tx_1").First(&expense).Error; err != nil {
		t.Fatalf("load imported transaction: %v", err)
	}
	if expense.Type != models.TransactionTypeExpense {
		t.Errorf("expected expense for negative amount, got %s", expense.Type)
	}

	rec = app.request("GET", "/api/v1/bank-connections", "", accessToken)
	conns := parseJSON(t, rec)["bank_connections"].([]interface{})
	if len(conns) != 1 || conns[0].(map[string]interface{})["last_synced_at"] == nil {
		t.Errorf("expected connection with last_synced_at, got %v", conns)
	}

	rec = app.request("POST", "/api/v1/vbank/sync-transactions", "", accessToken)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without account_id, got %d", rec.Code)
	}
}

func TestSwaggerDocs(t *testing.T) {
	app := setupApp(t, nil)

	rec := app.request("GET", "/swagger/index.html", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected swagger UI, got %d", rec.Code)
	}

	rec = app.request("GET", "/swagger/doc.json", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected doc.json, got %d", rec.Code)
	}
	var doc struct {
		BasePath string                            `json:"basePath"`
		Paths    map[string]map[string]interface{} `json:"paths"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("parse doc.json: %v", err)
	}
	if doc.BasePath != "/api/v1" {
		t.Errorf("expected basePath /api/v1, got %q", doc.BasePath)
	}

	// Every API route is documented.
	for _, route := range app.Router.Routes() {
		path, ok := strings.CutPrefix(route.Path, "/api/v1")
		if !ok {
			continue
		}
		path = strings.ReplaceAll(path, ":id", "{id}")
		if _, ok := doc.Paths[path][strings.ToLower(route.Method)]; !ok {
			t.Errorf("%s %s missing from swagger docs", route.Method, route.Path)
		}
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	app := setupApp(t, nil)
	for _, path := range []string{"/api/v1/profile", "/api/v1/accounts", "/api/v1/transactions", "/api/v1/categories", "/api/v1/bank-connections"} {
		rec := app.request("GET", path, "", "")
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s: expected 401, got %d", path, rec.Code)
		}
	}
}

func TestServeShutsDownOnCancel(t *testing.T) {
	srv := NewHTTPServer("127.0.0.1:0", http.NotFoundHandler())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- Serve(ctx, srv, time.Second, logger.Get()) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve() error: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
