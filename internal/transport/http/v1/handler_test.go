package v1

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/gogo/kernel/internal/artifact"
	"github.com/xiaot623/gogo/kernel/internal/capability"
	"github.com/xiaot623/gogo/kernel/internal/domain"
	"github.com/xiaot623/gogo/kernel/internal/observe"
	"github.com/xiaot623/gogo/kernel/internal/service"
	"github.com/xiaot623/gogo/kernel/internal/zone"
	"github.com/xiaot623/gogo/kernel/internal/zones/zone1"
	"github.com/xiaot623/gogo/kernel/policy"
	"github.com/xiaot623/gogo/kernel/tests/helpers"
)

func newTestHandler(t *testing.T) (*Handler, *echo.Echo) {
	t.Helper()
	ctx := context.Background()
	db := helpers.NewTestSQLiteStore(t)
	guard, err := policy.NewGuard(ctx, nil)
	if err != nil {
		t.Fatalf("NewGuard failed: %v", err)
	}
	k, err := zone1.New(nil)
	if err != nil {
		t.Fatalf("zone1.New failed: %v", err)
	}
	svc, err := service.New(service.Deps{
		Living:    db,
		Artifacts: artifact.NewMemoryStore(),
		Pointers:  db,
		Log:       db,
		Memory:    db,
		Guard:     guard,
		Ring:      observe.NewRing(8),
		Zones:     map[string]zone.Kernel{zone1.ZoneID: k},
	})
	if err != nil {
		t.Fatalf("service.New failed: %v", err)
	}
	svc.Observe().Subscribe(svc.Ring().Handler())

	h := NewHandler(svc, nil)
	e := echo.New()
	h.RegisterRoutes(e)
	return h, e
}

func do(t *testing.T, e *echo.Echo, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response failed: %v (%s)", err, rec.Body.String())
	}
	return out
}

func createSession(t *testing.T, e *echo.Echo) string {
	t.Helper()
	rec := do(t, e, http.MethodPost, "/v1/sessions", `{"tenant_id":"t1","decision_context_id":"dc1"}`, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	session := decode(t, rec)["session"].(map[string]interface{})
	return session["session_id"].(string)
}

var governorHeaders = map[string]string{
	HeaderActorID:    "alice",
	HeaderActorType:  "human",
	HeaderActorRoles: "governor",
}

func TestCreateSessionValidation(t *testing.T) {
	h, e := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/sessions", bytes.NewBufferString(`{"tenant_id":"t1"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.CreateSession(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestSessionLifecycle(t *testing.T) {
	_, e := newTestHandler(t)
	sessionID := createSession(t, e)

	if rec := do(t, e, http.MethodGet, "/v1/sessions/"+sessionID, "", nil); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec := do(t, e, http.MethodGet, "/v1/sessions/missing", "", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}

	rec := do(t, e, http.MethodGet, "/v1/sessions/"+sessionID+"/events", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	events := decode(t, rec)["events"].([]interface{})
	if len(events) != 1 || events[0].(map[string]interface{})["event_type"] != "SESSION_CREATED" {
		t.Fatalf("unexpected events: %+v", events)
	}

	if rec := do(t, e, http.MethodPost, "/v1/sessions/"+sessionID+"/epochs", `{"trigger":"data_refresh"}`, nil); rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	if rec := do(t, e, http.MethodPost, "/v1/sessions/"+sessionID+"/close", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec := do(t, e, http.MethodPost, "/v1/sessions/"+sessionID+"/epochs", `{}`, nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 on closed session, got %d", rec.Code)
	}
	rec = do(t, e, http.MethodGet, "/v1/sessions/"+sessionID+"/epochs", "", nil)
	if got := len(decode(t, rec)["epochs"].([]interface{})); got != 2 {
		t.Fatalf("expected 2 epochs, got %d", got)
	}
}

func TestInvokeExternalAgentIsForbidden(t *testing.T) {
	h, e := newTestHandler(t)
	sessionID := createSession(t, e)

	desc := domain.CapabilityDescriptor{
		TypeID:       "ext.scraper",
		SecurityFlag: domain.SecurityFlagExternalUntrusted,
		Capabilities: []string{"scrape"},
	}
	agent := capability.NewAgent(desc, func(ctx context.Context, ec domain.ExecContext, inputs map[string]any) (map[string]any, error) {
		return map[string]any{"pages": 3}, nil
	})
	if err := h.service.RegisterAgent(capability.StaticFactory(agent)); err != nil {
		t.Fatalf("RegisterAgent failed: %v", err)
	}

	rec := do(t, e, http.MethodPost, "/v1/sessions/"+sessionID+"/invoke", `{"type_id":"ext.scraper"}`, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", rec.Code, rec.Body.String())
	}
	if gate := decode(t, rec)["gate"]; gate != "policy" {
		t.Fatalf("expected policy gate, got %v", gate)
	}

	rec = do(t, e, http.MethodPost, "/v1/sessions/"+sessionID+"/invoke", `{"type_id":"ext.scraper","allow_external":true}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	outputs := decode(t, rec)["outputs"].(map[string]interface{})
	if outputs["pages"] != float64(3) {
		t.Fatalf("unexpected outputs: %+v", outputs)
	}

	if rec := do(t, e, http.MethodPost, "/v1/sessions/"+sessionID+"/invoke", `{}`, nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestRunZone(t *testing.T) {
	_, e := newTestHandler(t)
	sessionID := createSession(t, e)

	rec := do(t, e, http.MethodPost, "/v1/sessions/"+sessionID+"/zones/zone1/run", `{"inputs":{"rows":[{"a":1},null]}}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decode(t, rec)
	result := body["result"].(map[string]interface{})
	if result["status"] != "success" {
		t.Fatalf("unexpected result: %+v", result)
	}
	runID := body["run"].(map[string]interface{})["run_id"].(string)
	if rec := do(t, e, http.MethodGet, "/v1/runs/"+runID, "", nil); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	produced := result["produced_artifacts"].([]interface{})[0].(map[string]interface{})
	rec = do(t, e, http.MethodGet, "/v1/artifacts/"+produced["kind"].(string)+"/"+produced["artifact_id"].(string), "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	if rec := do(t, e, http.MethodPost, "/v1/sessions/"+sessionID+"/zones/zone9/run", `{}`, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}

	rec = do(t, e, http.MethodGet, "/v1/observe/recent", "", nil)
	if len(decode(t, rec)["notifications"].([]interface{})) == 0 {
		t.Fatalf("expected buffered notifications")
	}
}

func TestSensitivePointerNeedsGovernor(t *testing.T) {
	_, e := newTestHandler(t)
	sessionID := createSession(t, e)

	body := `{"kind":"agent_template","artifact_id":"summary-v1","payload":{"name":"summary"},"pointer_key":"core/agent_template/active"}`
	rec := do(t, e, http.MethodPost, "/v1/sessions/"+sessionID+"/templates", body, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", rec.Code, rec.Body.String())
	}

	move := `{"pointer_key":"core/agent_template/active","artifact_ref":{"kind":"agent_template","artifact_id":"summary-v1"}}`
	rec = do(t, e, http.MethodPost, "/v1/sessions/"+sessionID+"/pointers", move, map[string]string{HeaderActorID: "bob"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for operator, got %d", rec.Code)
	}
	rec = do(t, e, http.MethodPost, "/v1/sessions/"+sessionID+"/pointers", move, governorHeaders)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = do(t, e, http.MethodGet, "/v1/pointers/resolve?tenant_id=t1&decision_context_id=dc1&core_key=agent_template/active&zone_id=zone1", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	ref := decode(t, rec)["artifact_ref"].(map[string]interface{})
	if ref["artifact_id"] != "summary-v1" {
		t.Fatalf("unexpected pointer target: %+v", ref)
	}

	different := `{"kind":"agent_template","artifact_id":"summary-v1","payload":{"name":"other"}}`
	if rec := do(t, e, http.MethodPost, "/v1/sessions/"+sessionID+"/templates", different, nil); rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestScriptedAgentRegistration(t *testing.T) {
	_, e := newTestHandler(t)
	sessionID := createSession(t, e)

	script := `{"kind":"agent_script","artifact_id":"clean-v1","payload":{"script_id":"clean","language":"kernelscript.v1","steps":[{"type":"algorithm","algorithm_id":"generic.data_cleaning.basic","inputs":{"rows":"${inputs.rows}"}}]}}`
	if rec := do(t, e, http.MethodPost, "/v1/sessions/"+sessionID+"/templates", script, nil); rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	register := `{"descriptor":{"type_id":"agent.cleaner","version":"1.0.0"},"script_ref":{"kind":"agent_script","artifact_id":"clean-v1"}}`
	if rec := do(t, e, http.MethodPost, "/v1/agents/scripted", register, nil); rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec := do(t, e, http.MethodPost, "/v1/agents/scripted", register, nil); rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}

	rec := do(t, e, http.MethodGet, "/v1/agents", "", nil)
	if got := len(decode(t, rec)["agents"].([]interface{})); got != 2 {
		t.Fatalf("expected 2 agents, got %d", got)
	}
}

func TestHealth(t *testing.T) {
	_, e := newTestHandler(t)
	if rec := do(t, e, http.MethodGet, "/health", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
