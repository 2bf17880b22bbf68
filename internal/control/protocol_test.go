package control

import (
	"encoding/json"
	"testing"

	"github.com/harmony-wg/agent/internal/agenterr"
)

func TestSuccessResponseOmitsError(t *testing.T) {
	resp := successResponse("req-1", map[string]any{"state": "active"})

	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := decoded["error"]; ok {
		t.Errorf("success response should omit error field, got %s", data)
	}
	if decoded["success"] != true {
		t.Errorf("expected success=true, got %v", decoded["success"])
	}
}

func TestErrorResponseCarriesAgentErrorKind(t *testing.T) {
	err := agenterr.New(agenterr.KindNetworkNotFound, "network \"home\" is not registered")
	resp := errorResponse("req-2", err)

	if resp.Success {
		t.Errorf("expected success=false")
	}
	if resp.Error == nil || resp.Error.Type != agenterr.KindNetworkNotFound {
		t.Fatalf("expected network_not_found error, got %+v", resp.Error)
	}
}

func TestErrorResponseWrapsPlainError(t *testing.T) {
	resp := errorResponse("req-3", errPlain("boom"))

	if resp.Error == nil || resp.Error.Type != agenterr.KindInternalError {
		t.Fatalf("expected internal_error for a plain error, got %+v", resp.Error)
	}
}

type errPlain string

func (e errPlain) Error() string { return string(e) }

func TestRequestRoundTrip(t *testing.T) {
	raw := `{"id":"abc","action":"status","network":"home"}`
	var req Request
	if err := json.Unmarshal([]byte(raw), &req); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if req.ID != "abc" || req.Action != ActionStatus || req.Network != "home" {
		t.Fatalf("unexpected decode: %+v", req)
	}
}
