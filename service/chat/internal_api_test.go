package chat

import (
	midsec "PPChat/middleware/security"
	chatmodel "PPChat/module/chat/model"
	"PPChat/tools/errs"
	"PPChat/tools/security"
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testInternalKey = "k-internal"

type apiResp struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

func newInternalRouter(t *testing.T) (*fixture, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	f := newFixture(t)
	verifier := security.NewVerifier(testJwt)
	midsec.Configure(verifier, testInternalKey)
	t.Cleanup(func() { midsec.Configure(nil, "") })

	r := gin.New()
	NewServer(f.hub, verifier, ServerConfig{}).InternalRoutes(r)
	return f, r
}

func call(t *testing.T, r http.Handler, method, path, key string, body any) (int, apiResp) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set(midsec.HeaderInternalKey, key)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var resp apiResp
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return w.Code, resp
}

func TestInternalRequiresKey(t *testing.T) {
	_, r := newInternalRouter(t)
	path := "/internal/rooms/ffffffffffffffffffffffff/close"

	status, resp := call(t, r, http.MethodPost, path, "", nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, errs.Forbidden, resp.Code)

	status, _ = call(t, r, http.MethodPost, path, "wrong", nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = call(t, r, http.MethodPost, path, testInternalKey, nil)
	assert.Equal(t, http.StatusOK, status)
}

func TestInternalDeactivateAndActivate(t *testing.T) {
	f, r := newInternalRouter(t)
	room := f.room(chatmodel.RoomTypeFriend, true, 1, 2)
	_, c1 := f.connect(t, room, 1)

	status, resp := call(t, r, http.MethodPost, "/internal/rooms/"+room+"/deactivate", testInternalKey, nil)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"room_id":"`+room+`","session_closed":true}`, string(resp.Data))
	closed, code, _ := c1.closeState()
	assert.True(t, closed)
	assert.Equal(t, CloseRoomDeactivated, code)

	status, resp = call(t, r, http.MethodGet, "/internal/rooms/"+room+"/session", testInternalKey, nil)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"room_id":"`+room+`","open":false,"users":[]}`, string(resp.Data))

	status, _ = call(t, r, http.MethodPost, "/internal/rooms/"+room+"/activate", testInternalKey, nil)
	require.Equal(t, http.StatusOK, status)
	f.connect(t, room, 2)

	status, resp = call(t, r, http.MethodGet, "/internal/rooms/"+room+"/session", testInternalKey, nil)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"room_id":"`+room+`","open":true,"users":[2]}`, string(resp.Data))
}

func TestInternalDeactivateUnknownRoom(t *testing.T) {
	_, r := newInternalRouter(t)
	status, resp := call(t, r, http.MethodPost, "/internal/rooms/ffffffffffffffffffffffff/deactivate", testInternalKey, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, errs.RoomNotFound, resp.Code)
}

func TestInternalNotification(t *testing.T) {
	f, r := newInternalRouter(t)
	c := newFakeConn(7)
	f.hub.NewPresence(c).Connect()

	status, resp := call(t, r, http.MethodPost, "/internal/notifications", testInternalKey, map[string]any{
		"user_id":      7,
		"notification": map[string]any{"kind": "room_invite"},
	})
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"delivered":true}`, string(resp.Data))
	assert.Equal(t, []string{EventNotification}, c.events(t))

	status, resp = call(t, r, http.MethodPost, "/internal/notifications", testInternalKey, map[string]any{"user_id": 7})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, errs.ProtocolError, resp.Code)
}
