package ambulance

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/edhub/edhub/internal/platform/auth"
)

// routedEcho serves the ambulance routes as a user holding role.
func routedEcho(svc *Service, role *string, userID string) *echo.Echo {
	e := echo.New()
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := auth.WithIdentity(c.Request().Context(), userID, "tester", []string{*role})
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	})
	NewHandler(svc).RegisterRoutes(e.Group("/api"))
	return e
}

func serve(e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

const callBody = `{
	"patientName": "Jane Roe",
	"patientPhone": "0612345678",
	"latitude": 48.8566,
	"longitude": 2.3522,
	"emergencyType": "urgent"
}`

func TestHandler_DispatchFlow(t *testing.T) {
	f := newFixture()
	a := register(t, f.svc, "A1", StatusAvailable)
	role := auth.RoleNurse
	e := routedEcho(f.svc, &role, uuid.NewString())

	rec := serve(e, http.MethodPost, "/api/ambulance-requests", callBody)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"status":"accepted"`) || !strings.Contains(rec.Body.String(), a.ID.String()) {
		t.Errorf("unexpected body %s", rec.Body.String())
	}

	rec = serve(e, http.MethodPut, "/api/ambulances/"+a.ID.String()+"/status", `{"status":"maintenance"}`)
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409 for an ambulance on a mission, got %d", rec.Code)
	}

	rec = serve(e, http.MethodPost, "/api/ambulance-requests", `{"patientName":"x","patientPhone":"12"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for an invalid call, got %d", rec.Code)
	}

	rec = serve(e, http.MethodGet, "/api/ambulance-requests/"+uuid.NewString(), "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestHandler_RoutesEnforceRoles(t *testing.T) {
	f := newFixture()
	a := register(t, f.svc, "A1", StatusOffDuty)
	role := auth.RoleDoctor
	e := routedEcho(f.svc, &role, uuid.NewString())

	if rec := serve(e, http.MethodGet, "/api/ambulances", ""); rec.Code != http.StatusOK {
		t.Errorf("doctor list: expected 200, got %d", rec.Code)
	}
	if rec := serve(e, http.MethodPost, "/api/ambulance-requests", callBody); rec.Code != http.StatusForbidden {
		t.Errorf("doctor dispatch: expected 403, got %d", rec.Code)
	}
	if rec := serve(e, http.MethodDelete, "/api/ambulances/"+a.ID.String(), ""); rec.Code != http.StatusForbidden {
		t.Errorf("doctor delete: expected 403, got %d", rec.Code)
	}

	role = auth.RoleNurse
	if rec := serve(e, http.MethodPost, "/api/ambulances", `{"name":"A2"}`); rec.Code != http.StatusForbidden {
		t.Errorf("nurse register: expected 403, got %d", rec.Code)
	}
	if rec := serve(e, http.MethodGet, "/api/ambulances/assigned", ""); rec.Code != http.StatusOK {
		t.Errorf("nurse assigned: expected 200, got %d", rec.Code)
	}

	role = auth.RoleAdmin
	if rec := serve(e, http.MethodPost, "/api/ambulances", `{"name":"A2","status":"available"}`); rec.Code != http.StatusCreated {
		t.Errorf("admin register: expected 201, got %d", rec.Code)
	}
	if rec := serve(e, http.MethodDelete, "/api/ambulances/"+a.ID.String(), ""); rec.Code != http.StatusNoContent {
		t.Errorf("admin delete: expected 204, got %d", rec.Code)
	}
	if rec := serve(e, http.MethodGet, "/api/ambulances/not-a-uuid", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("invalid id: expected 400, got %d", rec.Code)
	}
}

func TestHandler_ListAssignedUsesCaller(t *testing.T) {
	f := newFixture()
	a := register(t, f.svc, "A1", StatusOffDuty)
	nurse := f.directory.add(auth.RoleNurse)
	role := auth.RoleAdmin
	e := routedEcho(f.svc, &role, nurse.ID.String())

	rec := serve(e, http.MethodPost, "/api/ambulances/"+a.ID.String()+"/team", `{"userId":"`+nurse.ID.String()+`"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("add team member: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	role = auth.RoleNurse
	rec = serve(e, http.MethodGet, "/api/ambulances/assigned", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), a.ID.String()) {
		t.Errorf("expected A1 in the nurse's list, got %d %s", rec.Code, rec.Body.String())
	}
}
