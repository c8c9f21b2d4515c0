package handlers

import (
	"net/http"
	"testing"

	"github.com/ideavolution/coordinator/internal/api"
	"github.com/ideavolution/coordinator/internal/database"
	"github.com/ideavolution/coordinator/internal/lifecycle"
	"github.com/ideavolution/coordinator/internal/testhelpers"
)

func TestCreateRestaurant(t *testing.T) {
	srv := newTestServer(t)

	var created database.Restaurant
	testhelpers.NewHTTPTestContext(t, http.MethodPost, "/api/restaurants", nil).
		WithJSONBody(map[string]string{
			"name":    "Soup Kitchen",
			"email":   "soup@example.com",
			"phone":   "555-0111",
			"address": "9 Elm St",
		}).
		Execute(srv.handler).
		AssertStatus(http.StatusCreated).
		DecodeJSON(&created)
	if created.ID == "" || !created.IsActive {
		t.Errorf("unexpected restaurant %+v", created)
	}

	testhelpers.NewHTTPTestContext(t, http.MethodGet, "/api/restaurants/"+created.ID, nil).
		Execute(srv.handler).
		AssertStatus(http.StatusOK).
		AssertBodyContains("Soup Kitchen")

	var rows []database.Restaurant
	testhelpers.NewHTTPTestContext(t, http.MethodGet, "/api/restaurants", nil).
		Execute(srv.handler).
		AssertStatus(http.StatusOK).
		DecodeJSON(&rows)
	if len(rows) != 3 {
		t.Errorf("expected 3 restaurants, got %d", len(rows))
	}
}

func TestCreateRestaurant_Validation(t *testing.T) {
	srv := newTestServer(t)

	var resp api.ErrorResponse
	testhelpers.NewHTTPTestContext(t, http.MethodPost, "/api/restaurants", nil).
		WithJSONBody(map[string]string{"name": "No Contact", "email": "not-an-email"}).
		Execute(srv.handler).
		AssertStatus(http.StatusUnprocessableEntity).
		DecodeJSON(&resp)
	for _, field := range []string{"email", "phone", "address"} {
		if _, ok := resp.Details[field]; !ok {
			t.Errorf("expected detail for %s, got %v", field, resp.Details)
		}
	}
}

func TestCreateFoodBank_OffersOpenAlerts(t *testing.T) {
	srv := newTestServer(t)
	alert := createAlert(t, srv)

	var created api.FoodBankCreatedResponse
	testhelpers.NewHTTPTestContext(t, http.MethodPost, "/api/foodbanks", nil).
		WithJSONBody(map[string]interface{}{
			"name":     "Riverside Pantry",
			"email":    "river@example.com",
			"phone":    "555-0222",
			"address":  "4 River Rd",
			"capacity": 40,
		}).
		Execute(srv.handler).
		AssertStatus(http.StatusCreated).
		DecodeJSON(&created)
	if created.OfferedAlerts != 1 || created.Capacity != 40 {
		t.Errorf("unexpected food bank response %+v", created)
	}

	var got api.AlertResponse
	testhelpers.NewHTTPTestContext(t, http.MethodGet, "/api/alerts/"+alert.ID, nil).
		Execute(srv.handler).
		AssertStatus(http.StatusOK).
		DecodeJSON(&got)
	if !got.NotifiedFoodbanks.Contains(created.ID) {
		t.Errorf("new food bank not recorded on alert: %v", got.NotifiedFoodbanks)
	}
}

func TestSetFoodBankActive(t *testing.T) {
	srv := newTestServer(t)

	testhelpers.NewHTTPTestContext(t, http.MethodPut, "/api/foodbanks/fbX/active", nil).
		WithJSONBody(map[string]bool{"is_active": false}).
		Execute(srv.handler).
		AssertStatus(http.StatusUnauthorized)

	testhelpers.NewHTTPTestContext(t, http.MethodPut, "/api/foodbanks/fbX/active", nil).
		WithActor(lifecycle.RoleFoodbank, "fbY").
		WithJSONBody(map[string]bool{"is_active": false}).
		Execute(srv.handler).
		AssertStatus(http.StatusForbidden)

	testhelpers.NewHTTPTestContext(t, http.MethodPut, "/api/foodbanks/fbX/active", nil).
		WithActor(lifecycle.RoleFoodbank, "fbX").
		WithJSONBody(map[string]interface{}{}).
		Execute(srv.handler).
		AssertStatus(http.StatusUnprocessableEntity).
		AssertBodyContains("is_active")

	testhelpers.NewHTTPTestContext(t, http.MethodPut, "/api/foodbanks/fbX/active", nil).
		WithActor(lifecycle.RoleFoodbank, "fbX").
		WithJSONBody(map[string]bool{"is_active": false}).
		Execute(srv.handler).
		AssertStatus(http.StatusOK).
		AssertBodyContains(`"is_active":false`)

	var active []database.FoodBank
	testhelpers.NewHTTPTestContext(t, http.MethodGet, "/api/foodbanks?active=true", nil).
		Execute(srv.handler).
		AssertStatus(http.StatusOK).
		DecodeJSON(&active)
	if len(active) != 1 || active[0].ID != "fbY" {
		t.Errorf("expected only fbY active, got %+v", active)
	}

	// inactive food banks are not offered new alerts
	alert := createAlert(t, srv)
	if alert.NotifiedFoodbanks.Contains("fbX") {
		t.Errorf("inactive food bank was notified: %v", alert.NotifiedFoodbanks)
	}

	// reactivation offers what is still open
	testhelpers.NewHTTPTestContext(t, http.MethodPut, "/api/foodbanks/fbX/active", nil).
		WithActor(lifecycle.RoleAdmin, "ops").
		WithJSONBody(map[string]bool{"is_active": true}).
		Execute(srv.handler).
		AssertStatus(http.StatusOK)

	var got api.AlertResponse
	testhelpers.NewHTTPTestContext(t, http.MethodGet, "/api/alerts/"+alert.ID, nil).
		Execute(srv.handler).
		DecodeJSON(&got)
	if !got.NotifiedFoodbanks.Contains("fbX") {
		t.Errorf("reactivated food bank not offered open alert: %v", got.NotifiedFoodbanks)
	}
}

func TestCreateDriver(t *testing.T) {
	srv := newTestServer(t)

	body := map[string]string{
		"name":           "Frankie",
		"email":          "frankie@example.com",
		"phone":          "555-0333",
		"license_number": "D-1234",
		"vehicle_type":   "bicycle",
	}
	testhelpers.NewHTTPTestContext(t, http.MethodPost, "/api/drivers", nil).
		WithJSONBody(body).
		Execute(srv.handler).
		AssertStatus(http.StatusUnprocessableEntity).
		AssertBodyContains("vehicle_type")

	body["vehicle_type"] = "truck"
	var created database.Driver
	testhelpers.NewHTTPTestContext(t, http.MethodPost, "/api/drivers", nil).
		WithJSONBody(body).
		Execute(srv.handler).
		AssertStatus(http.StatusCreated).
		DecodeJSON(&created)
	if !created.IsAvailable || created.Rating != 5 {
		t.Errorf("new drivers start available with the default rating: %+v", created)
	}

	var all []database.Driver
	testhelpers.NewHTTPTestContext(t, http.MethodGet, "/api/drivers", nil).
		Execute(srv.handler).
		AssertStatus(http.StatusOK).
		DecodeJSON(&all)
	if len(all) != 3 {
		t.Errorf("expected 3 drivers, got %d", len(all))
	}

	testhelpers.NewHTTPTestContext(t, http.MethodGet, "/api/drivers/nobody", nil).
		Execute(srv.handler).
		AssertStatus(http.StatusNotFound)
}

func TestDriverAvailability(t *testing.T) {
	srv := newTestServer(t)

	testhelpers.NewHTTPTestContext(t, http.MethodPut, "/api/drivers/d1/availability", nil).
		WithActor(lifecycle.RoleDriver, "d2").
		WithJSONBody(map[string]bool{"is_available": false}).
		Execute(srv.handler).
		AssertStatus(http.StatusForbidden)

	testhelpers.NewHTTPTestContext(t, http.MethodPut, "/api/drivers/d1/availability", nil).
		WithActor(lifecycle.RoleDriver, "d1").
		WithJSONBody(map[string]interface{}{"is_available": true, "location": map[string]float64{"lat": 120, "lng": 0}}).
		Execute(srv.handler).
		AssertStatus(http.StatusUnprocessableEntity).
		AssertBodyContains("location.lat")

	var updated database.Driver
	testhelpers.NewHTTPTestContext(t, http.MethodPut, "/api/drivers/d1/availability", nil).
		WithActor(lifecycle.RoleDriver, "d1").
		WithJSONBody(map[string]interface{}{"is_available": false, "location": map[string]float64{"lat": 40.7, "lng": -74}}).
		Execute(srv.handler).
		AssertStatus(http.StatusOK).
		DecodeJSON(&updated)
	if updated.IsAvailable || updated.CurrentLocation == nil || updated.CurrentLocation.Lat != 40.7 {
		t.Errorf("unexpected driver %+v", updated)
	}
}

func TestDriverAvailability_BusyDriverConflict(t *testing.T) {
	srv := newTestServer(t)
	alert := createAlert(t, srv)
	base := "/api/alerts/" + alert.ID

	testhelpers.NewHTTPTestContext(t, http.MethodPost, base+"/accept", nil).
		WithActor(lifecycle.RoleFoodbank, "fbX").
		Execute(srv.handler).
		AssertStatus(http.StatusOK)
	testhelpers.NewHTTPTestContext(t, http.MethodPost, base+"/assign-driver", nil).
		WithActor(lifecycle.RoleFoodbank, "fbX").
		WithJSONBody(map[string]string{"driver_id": "d1"}).
		Execute(srv.handler).
		AssertStatus(http.StatusOK)

	testhelpers.NewHTTPTestContext(t, http.MethodPut, "/api/drivers/d1/availability", nil).
		WithActor(lifecycle.RoleDriver, "d1").
		WithJSONBody(map[string]bool{"is_available": true}).
		Execute(srv.handler).
		AssertStatus(http.StatusConflict).
		AssertBodyContains("driver has an active delivery")

	// a second assignment of the same driver is refused
	second := createAlert(t, srv)
	testhelpers.NewHTTPTestContext(t, http.MethodPost, "/api/alerts/"+second.ID+"/accept", nil).
		WithActor(lifecycle.RoleFoodbank, "fbY").
		Execute(srv.handler).
		AssertStatus(http.StatusOK)
	testhelpers.NewHTTPTestContext(t, http.MethodPost, "/api/alerts/"+second.ID+"/assign-driver", nil).
		WithActor(lifecycle.RoleFoodbank, "fbY").
		WithJSONBody(map[string]string{"driver_id": "d1"}).
		Execute(srv.handler).
		AssertStatus(http.StatusConflict).
		AssertBodyContains("driver not available")
}
