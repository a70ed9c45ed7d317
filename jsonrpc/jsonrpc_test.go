package jsonrpc

import (
	"testing"

	json "github.com/goccy/go-json"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func TestRequestUnmarshalRequiredFields(t *testing.T) {
	var req Request
	err := json.Unmarshal([]byte(`{"jsonrpc":"2.0","method":"tools/list","id":1,"params":{"server":"alpha"}}`), &req)
	assert.NoError(t, err)
	assert.Equal(t, "tools/list", req.Method)
	assert.EqualValues(t, 1, req.Id)

	err = json.Unmarshal([]byte(`{"jsonrpc":"2.0","method":"tools/list"}`), &Request{})
	assert.Error(t, err)
}

func TestResponseRoundTrip(t *testing.T) {
	resp := NewResponse(RequestId(1), json.RawMessage(`{"ok":true}`))
	data, err := json.Marshal(resp)
	assert.NoError(t, err)

	var decoded Response
	assert.NoError(t, json.Unmarshal(data, &decoded))
	assert.EqualValues(t, 1, decoded.Id)
	assert.Nil(t, decoded.Error)
}

func TestNewErrorResponseCarriesRoutingData(t *testing.T) {
	err := NewError(InternalError, "server not found: x", RoutingErrorData{Type: "routing_error", Server: "x"})
	resp := NewErrorResponse(RequestId(7), err)
	assert.Equal(t, InternalError, resp.Error.Code)
	data, ok := resp.Error.Data.(RoutingErrorData)
	assert.True(t, ok)
	assert.Equal(t, "x", data.Server)
}

func TestErrorResponseStructuralDiff(t *testing.T) {
	want := &Response{
		Id:      RequestId(7),
		Jsonrpc: Version,
		Error: &Error{
			Code:    ServerNotFound,
			Message: "server not found: x",
			Data:    RoutingErrorData{Type: "server_not_found", Server: "x"},
		},
	}
	got := NewErrorResponse(RequestId(7), NewError(ServerNotFound, "server not found: x", RoutingErrorData{Type: "server_not_found", Server: "x"}))
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("response mismatch (-want +got):\n%s", diff)
	}
}
