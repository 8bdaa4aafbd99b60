package emergency

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/edhub/edhub/internal/platform/auth"
)

func newRequestContext(e *echo.Echo, method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func expectHTTPError(t *testing.T, err error, code int) {
	t.Helper()
	he, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected *echo.HTTPError, got %T (%v)", err, err)
	}
	if he.Code != code {
		t.Errorf("expected status %d, got %d", code, he.Code)
	}
}

const intakeBody = `{
	"firstName": "John",
	"lastName": "Doe",
	"dateOfBirth": "1980-04-12",
	"gender": "male",
	"phoneNumber": "0600000000",
	"address": "1 rue de la Paix",
	"emergencyContact": "Jane Doe",
	"currentSymptoms": "chest pain",
	"painLevel": "8",
	"emergencyLevel": "critical"
}`

func TestHandler_Create(t *testing.T) {
	f := newFixture()
	f.doctors.add("house", true)
	h, e := NewHandler(f.svc), echo.New()

	c, rec := newRequestContext(e, http.MethodPost, "/api/emergency-patients", intakeBody)
	if err := h.Create(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := body["_id"]; !ok {
		t.Error("expected _id in response")
	}
	if body["assignedDoctor"] == nil {
		t.Error("expected assignedDoctor in response")
	}
	if body["painLevel"] != float64(8) {
		t.Errorf("expected numeric painLevel, got %v", body["painLevel"])
	}
}

func TestHandler_CreateValidation(t *testing.T) {
	h, e := NewHandler(newFixture().svc), echo.New()

	c, _ := newRequestContext(e, http.MethodPost, "/api/emergency-patients", `{"firstName":"John","painLevel":"12"}`)
	err := h.Create(c)
	expectHTTPError(t, err, http.StatusBadRequest)

	msg, ok := err.(*echo.HTTPError).Message.(map[string]interface{})
	if !ok {
		t.Fatalf("expected structured message, got %T", err.(*echo.HTTPError).Message)
	}
	if problems, _ := msg["details"].([]string); len(problems) == 0 {
		t.Error("expected validation details")
	}
}

func TestHandler_ListSortedByTriage(t *testing.T) {
	f := newFixture()
	createPatient(t, f.svc, "Ann", "low")
	createPatient(t, f.svc, "Bob", "critical")
	h, e := NewHandler(f.svc), echo.New()

	c, rec := newRequestContext(e, http.MethodGet, "/api/emergency-patients?sort=triage", "")
	if err := h.List(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var items []map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &items); err != nil {
		t.Fatalf("expected plain array: %v", err)
	}
	if len(items) != 2 || items[0]["firstName"] != "Bob" {
		t.Errorf("expected critical case first, got %s", rec.Body.String())
	}
}

func TestHandler_GetInvalidID(t *testing.T) {
	h, e := NewHandler(newFixture().svc), echo.New()
	c, _ := newRequestContext(e, http.MethodGet, "/", "")
	c.SetParamNames("id")
	c.SetParamValues("not-a-uuid")
	expectHTTPError(t, h.Get(c), http.StatusBadRequest)
}

func TestHandler_GetNotFound(t *testing.T) {
	h, e := NewHandler(newFixture().svc), echo.New()
	c, _ := newRequestContext(e, http.MethodGet, "/", "")
	c.SetParamNames("id")
	c.SetParamValues(uuid.New().String())
	expectHTTPError(t, h.Get(c), http.StatusNotFound)
}

func TestHandler_UpdateStatus(t *testing.T) {
	f := newFixture()
	p := createPatient(t, f.svc, "John", "high")
	h, e := NewHandler(f.svc), echo.New()

	c, rec := newRequestContext(e, http.MethodPut, "/", `{"status":"under_examination"}`)
	c.SetParamNames("id")
	c.SetParamValues(p.ID.String())
	if err := h.UpdateStatus(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"status":"under_examination"`) {
		t.Errorf("unexpected body %s", rec.Body.String())
	}

	c, _ = newRequestContext(e, http.MethodPut, "/", `{"status":"gone"}`)
	c.SetParamNames("id")
	c.SetParamValues(p.ID.String())
	expectHTTPError(t, h.UpdateStatus(c), http.StatusBadRequest)

	c, _ = newRequestContext(e, http.MethodPut, "/", `{"status":"treated"}`)
	c.SetParamNames("id")
	c.SetParamValues(p.ID.String())
	if err := h.UpdateStatus(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c, _ = newRequestContext(e, http.MethodPut, "/", `{"status":"registered"}`)
	c.SetParamNames("id")
	c.SetParamValues(p.ID.String())
	expectHTTPError(t, h.UpdateStatus(c), http.StatusConflict)
}

func TestHandler_WaitTime(t *testing.T) {
	f := newFixture()
	p := createPatient(t, f.svc, "John", "medium")
	h, e := NewHandler(f.svc), echo.New()

	c, rec := newRequestContext(e, http.MethodGet, "/", "")
	c.SetParamNames("id")
	c.SetParamValues(p.ID.String())
	if err := h.WaitTime(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), "about ") {
		t.Errorf("expected estimate, got %s", rec.Body.String())
	}

	c, rec = newRequestContext(e, http.MethodGet, "/", "")
	c.SetParamNames("id")
	c.SetParamValues(uuid.New().String())
	if err := h.WaitTime(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusNotFound || !strings.Contains(rec.Body.String(), WaitUnavailable) {
		t.Errorf("expected 404 with unavailable estimate, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestHandler_Delete(t *testing.T) {
	f := newFixture()
	p := createPatient(t, f.svc, "John", "high")
	h, e := NewHandler(f.svc), echo.New()

	c, rec := newRequestContext(e, http.MethodDelete, "/", "")
	c.SetParamNames("id")
	c.SetParamValues(p.ID.String())
	if err := h.Delete(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), p.ID.String()) {
		t.Errorf("expected deletedId in body, got %s", rec.Body.String())
	}
}

func TestHandler_RoutesEnforceRoles(t *testing.T) {
	f := newFixture()
	p := createPatient(t, f.svc, "John", "high")

	e := echo.New()
	role := auth.RoleDoctor
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := auth.WithIdentity(c.Request().Context(), uuid.NewString(), "tester", []string{role})
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	})
	NewHandler(f.svc).RegisterRoutes(e.Group("/api"))

	do := func(method, path string) int {
		req := httptest.NewRequest(method, path, nil)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := do(http.MethodGet, "/api/emergency-patients"); code != http.StatusOK {
		t.Errorf("doctor list: expected 200, got %d", code)
	}
	if code := do(http.MethodDelete, "/api/emergency-patients/"+p.ID.String()); code != http.StatusForbidden {
		t.Errorf("doctor delete: expected 403, got %d", code)
	}

	role = auth.RoleNurse
	if code := do(http.MethodDelete, "/api/emergency-patients/"+p.ID.String()); code != http.StatusOK {
		t.Errorf("nurse delete: expected 200, got %d", code)
	}

	role = "visitor"
	if code := do(http.MethodGet, "/api/emergency-patients"); code != http.StatusForbidden {
		t.Errorf("unknown role: expected 403, got %d", code)
	}
}
