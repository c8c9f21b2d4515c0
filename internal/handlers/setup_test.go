package handlers

import (
	"net/http"
	"testing"
	"time"

	"github.com/ideavolution/coordinator/internal/database"
	"github.com/ideavolution/coordinator/internal/middleware"
	"github.com/ideavolution/coordinator/internal/realtime"
	"github.com/ideavolution/coordinator/internal/services"
	"github.com/ideavolution/coordinator/internal/testhelpers"
	"gorm.io/gorm"
)

type testServer struct {
	db        *gorm.DB
	alerts    *services.AlertService
	directory *services.DirectoryService
	hub       *realtime.Hub
	handler   http.Handler
}

// newTestServer wires the full HTTP stack over an in-memory database with
// identity taken from the actor headers
func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db := testhelpers.NewTestDB(t)
	hub := realtime.NewHub()

	var alerts *services.AlertService
	fanout := realtime.NewFanout(hub, func(a *database.Alert) time.Time { return alerts.Deadline(a) })
	alerts = services.NewAlertService(db, services.AlertServiceConfig{}, fanout)
	directory := services.NewDirectoryService(db, alerts)

	mux := http.NewServeMux()
	NewHTTPHandler(db).SetupRoutes(mux)
	NewAPIHandler(alerts, directory).SetupRoutes(mux)
	NewRealtimeWSHandler(hub, fanout, alerts, nil).SetupRoutes(mux)

	actor := middleware.NewActorMiddleware("", "/health")
	handler := middleware.RequestIDMiddleware(actor.Wrap(mux))

	testhelpers.MustCreate(t, db,
		testhelpers.NewRestaurant("r1", "Corner Bistro"),
		testhelpers.NewRestaurant("r2", "Night Market"),
		testhelpers.NewFoodBank("fbX", "Harbor Pantry"),
		testhelpers.NewFoodBank("fbY", "Hilltop Shelf"),
		testhelpers.NewDriver("d1", "Dana"),
		testhelpers.NewDriver("d2", "Eli"),
	)

	return &testServer{db: db, alerts: alerts, directory: directory, hub: hub, handler: handler}
}
