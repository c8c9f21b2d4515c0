// Package testhelpers provides reusable testing utilities for the coordinator.
//
// This package contains:
// - HTTP test helpers (requests carrying an actor identity)
// - An isolated in-memory database per test
// - Assertion and timing helpers
package testhelpers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ideavolution/coordinator/internal/database"
	"github.com/ideavolution/coordinator/internal/lifecycle"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// ========================================
// Database Helpers
// ========================================

// NewTestDB opens a private shared-cache in-memory SQLite database with the
// schema migrated. Each call gets its own database.
func NewTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(database.Models()...); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

// MustCreate inserts every record or fails the test
func MustCreate(t *testing.T, db *gorm.DB, records ...interface{}) {
	t.Helper()
	for _, r := range records {
		if err := db.Create(r).Error; err != nil {
			t.Fatalf("failed to create %T: %v", r, err)
		}
	}
}

// ========================================
// HTTP Test Helpers
// ========================================

// HTTPTestContext holds components for HTTP handler testing
type HTTPTestContext struct {
	T        *testing.T
	Recorder *httptest.ResponseRecorder
	Request  *http.Request
}

// NewHTTPTestContext creates a new HTTP test context
func NewHTTPTestContext(t *testing.T, method, path string, body io.Reader) *HTTPTestContext {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	return &HTTPTestContext{
		T:        t,
		Recorder: httptest.NewRecorder(),
		Request:  req,
	}
}

// WithHeader adds a header to the request
func (ctx *HTTPTestContext) WithHeader(key, value string) *HTTPTestContext {
	ctx.Request.Header.Set(key, value)
	return ctx
}

// WithJSONBody sets JSON body on the request
func (ctx *HTTPTestContext) WithJSONBody(v interface{}) *HTTPTestContext {
	ctx.T.Helper()
	body, err := json.Marshal(v)
	if err != nil {
		ctx.T.Fatalf("failed to marshal JSON body: %v", err)
	}
	header := ctx.Request.Header.Clone()
	ctx.Request = httptest.NewRequest(ctx.Request.Method, ctx.Request.URL.String(), bytes.NewReader(body))
	ctx.Request.Header = header
	ctx.Request.Header.Set("Content-Type", "application/json")
	return ctx
}

// WithActor identifies the caller through the actor headers
func (ctx *HTTPTestContext) WithActor(role lifecycle.Role, id string) *HTTPTestContext {
	ctx.Request.Header.Set("X-Actor-Role", string(role))
	ctx.Request.Header.Set("X-Actor-ID", id)
	return ctx
}

// WithBearerToken adds Authorization Bearer header
func (ctx *HTTPTestContext) WithBearerToken(token string) *HTTPTestContext {
	return ctx.WithHeader("Authorization", "Bearer "+token)
}

// Execute runs the handler and returns the response
func (ctx *HTTPTestContext) Execute(handler http.Handler) *HTTPTestContext {
	handler.ServeHTTP(ctx.Recorder, ctx.Request)
	return ctx
}

// AssertStatus checks the response status code
func (ctx *HTTPTestContext) AssertStatus(expected int) *HTTPTestContext {
	ctx.T.Helper()
	if ctx.Recorder.Code != expected {
		ctx.T.Errorf("expected status %d, got %d. Body: %s", expected, ctx.Recorder.Code, ctx.Recorder.Body.String())
	}
	return ctx
}

// AssertBodyContains checks if response body contains substring
func (ctx *HTTPTestContext) AssertBodyContains(substr string) *HTTPTestContext {
	ctx.T.Helper()
	body := ctx.Recorder.Body.String()
	if !strings.Contains(body, substr) {
		ctx.T.Errorf("expected body to contain %q, got: %s", substr, body)
	}
	return ctx
}

// DecodeJSON decodes response body as JSON
func (ctx *HTTPTestContext) DecodeJSON(v interface{}) *HTTPTestContext {
	ctx.T.Helper()
	if err := json.NewDecoder(ctx.Recorder.Body).Decode(v); err != nil {
		ctx.T.Fatalf("failed to decode JSON response: %v", err)
	}
	return ctx
}

// ========================================
// Timing Helpers
// ========================================

// MustCompleteWithin fails the test if the function takes longer than the timeout
func MustCompleteWithin(t *testing.T, timeout time.Duration, fn func()) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		fn()
		close(done)
	}()

	select {
	case <-done:
		return
	case <-time.After(timeout):
		t.Fatalf("function did not complete within %v", timeout)
	}
}

// WaitFor polls cond until it holds or timeout passes
func WaitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("%s: condition not met within %v", msg, timeout)
}
