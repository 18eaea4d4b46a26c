package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dokzlo13/homed/internal/db"
	"github.com/dokzlo13/homed/internal/device"
	"github.com/dokzlo13/homed/internal/fulfillment"
	"github.com/dokzlo13/homed/internal/ledger"
)

const testSecret = "hub-secret"

const syncRequest = `{"requestId":"req-1","inputs":[{"intent":"action.devices.SYNC"}]}`

// plug implements the assistant-facing OnOff capability.
type plug struct {
	id string
	on bool
}

func (p *plug) ID() string                      { return p.id }
func (p *plug) Name() fulfillment.Name          { return fulfillment.Name{Name: "Plug"} }
func (p *plug) Type() fulfillment.DeviceType    { return fulfillment.TypeOutlet }
func (p *plug) Online(ctx context.Context) bool { return true }

func (p *plug) On(ctx context.Context) (bool, error) { return p.on, nil }

func (p *plug) SetOn(ctx context.Context, on bool) error {
	p.on = on
	return nil
}

type fixture struct {
	server *httptest.Server
	ledger *ledger.Ledger
	plug   *plug
}

func newFixture(t *testing.T, auth AuthConfig) *fixture {
	t.Helper()

	database, err := db.Open(filepath.Join(t.TempDir(), "homed.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	l := ledger.New(database.DB)
	registry := device.NewRegistry()
	p := &plug{id: "plug-1"}
	if err := registry.Register(p); err != nil {
		t.Fatalf("Register: %v", err)
	}

	s := NewServer("127.0.0.1", 0, auth, fulfillment.NewEngine(registry), l)
	ts := httptest.NewServer(s.routes())
	t.Cleanup(ts.Close)

	return &fixture{server: ts, ledger: l, plug: p}
}

func signToken(t *testing.T, secret, username string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"preferred_username": username,
	}).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("SignedString: %v", err)
	}
	return token
}

func doRequest(t *testing.T, method, url, token, body string) *http.Response {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, rd)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

type errorEnvelope struct {
	Error struct {
		Code   int    `json:"code"`
		Status string `json:"status"`
		Reason string `json:"reason"`
	} `json:"error"`
}

func TestHealthIsPublic(t *testing.T) {
	f := newFixture(t, AuthConfig{Secret: testSecret})

	resp := doRequest(t, http.MethodGet, f.server.URL+"/healthz", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	var body map[string]string
	decodeBody(t, resp, &body)
	if body["status"] != "ok" {
		t.Fatalf("status field = %q, want %q", body["status"], "ok")
	}
}

func TestMissingTokenRejected(t *testing.T) {
	f := newFixture(t, AuthConfig{Secret: testSecret})

	resp := doRequest(t, http.MethodPost, f.server.URL+"/fulfillment/google_home", "", syncRequest)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusUnauthorized)
	}
	var body errorEnvelope
	decodeBody(t, resp, &body)
	if body.Error.Code != http.StatusUnauthorized || body.Error.Status != "unauthorized" {
		t.Fatalf("error envelope = %+v", body.Error)
	}
}

func TestForgedTokenRejected(t *testing.T) {
	f := newFixture(t, AuthConfig{Secret: testSecret})

	token := signToken(t, "not-the-secret", "mallory")
	resp := doRequest(t, http.MethodPost, f.server.URL+"/fulfillment/google_home", token, syncRequest)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusUnauthorized)
	}
}

func TestSyncReportsAuthenticatedUser(t *testing.T) {
	f := newFixture(t, AuthConfig{Secret: testSecret})

	token := signToken(t, testSecret, "alice")
	resp := doRequest(t, http.MethodPost, f.server.URL+"/fulfillment/google_home", token, syncRequest)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var body struct {
		RequestID string `json:"requestId"`
		Payload   struct {
			AgentUserID string `json:"agentUserId"`
			Devices     []struct {
				ID     string   `json:"id"`
				Traits []string `json:"traits"`
			} `json:"devices"`
		} `json:"payload"`
	}
	decodeBody(t, resp, &body)
	if body.RequestID != "req-1" {
		t.Fatalf("requestId = %q, want %q", body.RequestID, "req-1")
	}
	if body.Payload.AgentUserID != "alice" {
		t.Fatalf("agentUserId = %q, want %q", body.Payload.AgentUserID, "alice")
	}
	if len(body.Payload.Devices) != 1 || body.Payload.Devices[0].ID != "plug-1" {
		t.Fatalf("devices = %+v, want the registered plug", body.Payload.Devices)
	}
}

func TestUserinfoResolvesUsername(t *testing.T) {
	idp := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer opaque-token" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"preferred_username":"bob","sub":"uuid-1"}`))
	}))
	defer idp.Close()

	f := newFixture(t, AuthConfig{UserinfoURL: idp.URL})

	resp := doRequest(t, http.MethodPost, f.server.URL+"/fulfillment/google_home", "opaque-token", syncRequest)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	var body struct {
		Payload struct {
			AgentUserID string `json:"agentUserId"`
		} `json:"payload"`
	}
	decodeBody(t, resp, &body)
	if body.Payload.AgentUserID != "bob" {
		t.Fatalf("agentUserId = %q, want %q", body.Payload.AgentUserID, "bob")
	}

	resp = doRequest(t, http.MethodPost, f.server.URL+"/fulfillment/google_home", "bad-token", syncRequest)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status with rejected token = %d, want %d", resp.StatusCode, http.StatusUnauthorized)
	}
}

func TestMalformedPayloadRejected(t *testing.T) {
	f := newFixture(t, AuthConfig{Secret: testSecret})

	token := signToken(t, testSecret, "alice")
	resp := doRequest(t, http.MethodPost, f.server.URL+"/fulfillment/google_home", token, `{"requestId": []}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
	var body errorEnvelope
	decodeBody(t, resp, &body)
	if body.Error.Status != "bad_request" {
		t.Fatalf("error status = %q, want %q", body.Error.Status, "bad_request")
	}
}

func TestExecuteTogglesAndAudits(t *testing.T) {
	f := newFixture(t, AuthConfig{Secret: testSecret})

	token := signToken(t, testSecret, "alice")
	body := `{
		"requestId": "req-2",
		"inputs": [{
			"intent": "action.devices.EXECUTE",
			"payload": {"commands": [{
				"devices": [{"id": "plug-1"}],
				"execution": [{"command": "action.devices.commands.OnOff", "params": {"on": true}}]
			}]}
		}]
	}`
	resp := doRequest(t, http.MethodPost, f.server.URL+"/fulfillment/google_home", token, body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if !f.plug.on {
		t.Fatal("plug was not switched on")
	}

	entries, err := f.ledger.GetByType(ledger.EventExecute, 10)
	if err != nil {
		t.Fatalf("GetByType: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("execute entries = %d, want 1", len(entries))
	}
	if entries[0].Payload["user"] != "alice" || entries[0].Payload["request_id"] != "req-2" {
		t.Fatalf("audit payload = %v", entries[0].Payload)
	}
}

func TestQueryDoesNotAudit(t *testing.T) {
	f := newFixture(t, AuthConfig{Secret: testSecret})

	token := signToken(t, testSecret, "alice")
	body := `{
		"requestId": "req-3",
		"inputs": [{
			"intent": "action.devices.QUERY",
			"payload": {"devices": [{"id": "plug-1"}]}
		}]
	}`
	resp := doRequest(t, http.MethodPost, f.server.URL+"/fulfillment/google_home", token, body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	entries, err := f.ledger.GetByType(ledger.EventExecute, 10)
	if err != nil {
		t.Fatalf("GetByType: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("execute entries = %d, want 0", len(entries))
	}
}

func TestEventsEndpoint(t *testing.T) {
	f := newFixture(t, AuthConfig{Secret: testSecret})

	for _, id := range []string{"kettle", "heater", "washer"} {
		if err := f.ledger.Append(ledger.EventDeviceRegistered, "", map[string]any{"device": id}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	token := signToken(t, testSecret, "alice")
	resp := doRequest(t, http.MethodGet, f.server.URL+"/events?limit=2", token, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	var body struct {
		Events []eventEntry `json:"events"`
	}
	decodeBody(t, resp, &body)
	if len(body.Events) != 2 {
		t.Fatalf("events = %d, want 2", len(body.Events))
	}
	for _, e := range body.Events {
		if e.Type != string(ledger.EventDeviceRegistered) {
			t.Fatalf("event type = %q, want %q", e.Type, ledger.EventDeviceRegistered)
		}
	}
}

func TestEventsRequireAuth(t *testing.T) {
	f := newFixture(t, AuthConfig{Secret: testSecret})

	resp := doRequest(t, http.MethodGet, f.server.URL+"/events", "", "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusUnauthorized)
	}
}

func TestEventsLimitValidated(t *testing.T) {
	f := newFixture(t, AuthConfig{Secret: testSecret})

	token := signToken(t, testSecret, "alice")
	for _, limit := range []string{"0", "501", "nope"} {
		resp := doRequest(t, http.MethodGet, f.server.URL+"/events?limit="+limit, token, "")
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("limit=%s: status = %d, want %d", limit, resp.StatusCode, http.StatusBadRequest)
		}
	}
}
