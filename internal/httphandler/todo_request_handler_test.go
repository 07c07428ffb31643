// Copyright IBM Corp. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0
package httphandler_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hyperledger-labs/orion-httpauth/internal/httphandler"
	"github.com/hyperledger-labs/orion-httpauth/internal/httputils"
	"github.com/hyperledger-labs/orion-httpauth/internal/todo"
	"github.com/hyperledger-labs/orion-httpauth/internal/utils"
	"github.com/hyperledger-labs/orion-httpauth/pkg/constants"
	"github.com/hyperledger-labs/orion-httpauth/pkg/httpsig"
	"github.com/hyperledger-labs/orion-httpauth/pkg/testutils"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	handler http.Handler
	issuer  *testutils.Issuer
	store   todo.Store
	reg     *prometheus.Registry
}

func newTestEnv(t *testing.T) *testEnv {
	lg := testutils.NewLogger(t, "test")
	issuer := testutils.NewIssuer(t, []byte("seed"), false)

	v, err := httpsig.NewVerifier(&httpsig.Config{
		RootKeys: issuer.RootKeys(t),
		Logger:   lg,
	})
	require.NoError(t, err)

	store := todo.NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })

	reg := prometheus.NewRegistry()
	handler := httphandler.NewAuthMiddleware(
		v,
		httphandler.NewTodoRequestHandler(store, utils.NewTodoMetrics(reg), lg),
		utils.NewAuthMetrics(reg),
		lg,
	)

	return &testEnv{handler: handler, issuer: issuer, store: store, reg: reg}
}

func (e *testEnv) do(t *testing.T, s *httpsig.RequestSigner, method, target string, body interface{}) (*httptest.ResponseRecorder, *httputils.Envelope) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, target, reader)
	if s != nil {
		testutils.SignHTTPRequest(t, req, s)
	}

	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)

	env := &httputils.Envelope{}
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), env))
	}
	return rec, env
}

// decodeData re-decodes the ok payload of env into v.
func decodeData(t *testing.T, env *httputils.Envelope, v interface{}) {
	require.NotNil(t, env.Ok, "expected an ok envelope, got %+v", env.Err)
	b, err := json.Marshal(env.Ok.Data)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(b, v))
}

func TestAuthMiddleware(t *testing.T) {
	t.Run("missing signature", func(t *testing.T) {
		e := newTestEnv(t)
		rec, env := e.do(t, nil, http.MethodGet, constants.TodosEndpoint, nil)

		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.NotNil(t, env.Err)
		require.Equal(t, http.StatusUnauthorized, env.Err.Code)
		require.Equal(t, "MissingSignatureHeader", env.Err.Message)
		require.NotEmpty(t, rec.Header().Get(constants.RequestIDHeader))
	})

	t.Run("tampered request", func(t *testing.T) {
		e := newTestEnv(t)
		s, _ := testutils.NewRequestSigner(t)

		req := httptest.NewRequest(http.MethodGet, constants.TodosEndpoint, nil)
		testutils.SignHTTPRequest(t, req, s)
		req.URL.Path = constants.GetWhoAmI

		rec := httptest.NewRecorder()
		e.handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Contains(t, rec.Body.String(), "SignatureVerificationFailed")
	})

	t.Run("request ids are unique", func(t *testing.T) {
		e := newTestEnv(t)
		s, _ := testutils.NewRequestSigner(t)

		rec1, _ := e.do(t, s, http.MethodGet, constants.GetWhoAmI, nil)
		rec2, _ := e.do(t, s, http.MethodGet, constants.GetWhoAmI, nil)
		require.Equal(t, http.StatusOK, rec1.Code)
		require.NotEqual(t, rec1.Header().Get(constants.RequestIDHeader), rec2.Header().Get(constants.RequestIDHeader))
	})

	t.Run("preflight is not authenticated", func(t *testing.T) {
		e := newTestEnv(t)
		rec, _ := e.do(t, nil, http.MethodOptions, constants.TodosEndpoint, nil)
		require.Equal(t, http.StatusNoContent, rec.Code)
		require.Contains(t, rec.Header().Get("Allow"), http.MethodPatch)
	})

	t.Run("expired delegation", func(t *testing.T) {
		e := newTestEnv(t)
		s := e.issuer.NewDelegatedSigner(t, time.Now().Add(-time.Minute))

		rec, env := e.do(t, s, http.MethodGet, constants.GetWhoAmI, nil)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Contains(t, env.Err.Message, "DelegationExpired")
	})
}

func TestWhoAmI(t *testing.T) {
	e := newTestEnv(t)

	t.Run("direct", func(t *testing.T) {
		s, cs := testutils.NewRequestSigner(t)
		rec, env := e.do(t, s, http.MethodGet, constants.GetWhoAmI, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		who := &httphandler.WhoAmIResponse{}
		decodeData(t, env, who)
		require.Equal(t, testutils.SignerPrincipal(t, cs), who.Principal)
		require.False(t, who.Delegated)
	})

	t.Run("delegated", func(t *testing.T) {
		s := e.issuer.NewDelegatedSigner(t, time.Now().Add(time.Hour))
		rec, env := e.do(t, s, http.MethodGet, constants.GetWhoAmI, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		who := &httphandler.WhoAmIResponse{}
		decodeData(t, env, who)
		require.Equal(t, e.issuer.Principal(), who.Principal)
		require.True(t, who.Delegated)
	})
}

func TestTodoLifecycle(t *testing.T) {
	e := newTestEnv(t)
	s, cs := testutils.NewRequestSigner(t)
	caller := testutils.SignerPrincipal(t, cs)

	rec, env := e.do(t, s, http.MethodGet, constants.TodosEndpoint, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := &httphandler.ListTodosResponse{}
	decodeData(t, env, list)
	require.Empty(t, list.Todos)
	require.Equal(t, caller, list.UserPrincipal)

	for i, title := range []string{"buy milk", "walk dog"} {
		rec, env = e.do(t, s, http.MethodPost, constants.TodosEndpoint, &httphandler.CreateTodoRequest{Title: title})
		require.Equal(t, http.StatusCreated, rec.Code)
		item := &todo.Item{}
		decodeData(t, env, item)
		require.Equal(t, &todo.Item{ID: uint32(i), Title: title}, item)
	}

	rec, env = e.do(t, s, http.MethodGet, constants.URLForTodo(1), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	item := &todo.Item{}
	decodeData(t, env, item)
	require.Equal(t, "walk dog", item.Title)

	completed := true
	rec, env = e.do(t, s, http.MethodPatch, constants.URLForTodo(0), &todo.Update{Completed: &completed})
	require.Equal(t, http.StatusOK, rec.Code)
	item = &todo.Item{}
	decodeData(t, env, item)
	require.Equal(t, &todo.Item{ID: 0, Title: "buy milk", Completed: true}, item)

	title := "buy oat milk"
	rec, env = e.do(t, s, http.MethodPut, constants.URLForTodo(0), &todo.Update{Title: &title})
	require.Equal(t, http.StatusOK, rec.Code)
	item = &todo.Item{}
	decodeData(t, env, item)
	require.Equal(t, &todo.Item{ID: 0, Title: "buy oat milk", Completed: true}, item)

	rec, env = e.do(t, s, http.MethodDelete, constants.URLForTodo(1), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, env.Ok)
	require.Nil(t, env.Ok.Data)

	rec, _ = e.do(t, s, http.MethodDelete, constants.URLForTodo(1), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, env = e.do(t, s, http.MethodGet, constants.URLForTodo(1), nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "Todo item not found", env.Err.Message)

	rec, env = e.do(t, s, http.MethodGet, constants.TodosEndpoint, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list = &httphandler.ListTodosResponse{}
	decodeData(t, env, list)
	require.Equal(t, []*todo.Item{{ID: 0, Title: "buy oat milk", Completed: true}}, list.Todos)

	rec, env = e.do(t, s, http.MethodPost, constants.TodosEndpoint, &httphandler.CreateTodoRequest{Title: "again"})
	require.Equal(t, http.StatusCreated, rec.Code)
	item = &todo.Item{}
	decodeData(t, env, item)
	require.Equal(t, uint32(2), item.ID)
}

func TestTodoIsolation(t *testing.T) {
	e := newTestEnv(t)
	alice, _ := testutils.NewRequestSigner(t)
	bob, _ := testutils.NewRequestSigner(t)

	rec, _ := e.do(t, alice, http.MethodPost, constants.TodosEndpoint, &httphandler.CreateTodoRequest{Title: "secret"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, _ = e.do(t, bob, http.MethodGet, constants.URLForTodo(0), nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec, env := e.do(t, bob, http.MethodGet, constants.TodosEndpoint, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := &httphandler.ListTodosResponse{}
	decodeData(t, env, list)
	require.Empty(t, list.Todos)

	completed := true
	rec, _ = e.do(t, bob, http.MethodPatch, constants.URLForTodo(0), &todo.Update{Completed: &completed})
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec, env = e.do(t, bob, http.MethodPost, constants.TodosEndpoint, &httphandler.CreateTodoRequest{Title: "mine"})
	require.Equal(t, http.StatusCreated, rec.Code)
	item := &todo.Item{}
	decodeData(t, env, item)
	require.Equal(t, uint32(0), item.ID)
}

func TestTodoBadRequests(t *testing.T) {
	e := newTestEnv(t)
	s, _ := testutils.NewRequestSigner(t)

	t.Run("unknown field", func(t *testing.T) {
		rec, env := e.do(t, s, http.MethodPost, constants.TodosEndpoint, map[string]interface{}{"title": "x", "owner": "y"})
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Contains(t, env.Err.Message, "invalid request body")
	})

	t.Run("empty body", func(t *testing.T) {
		rec, env := e.do(t, s, http.MethodPost, constants.TodosEndpoint, nil)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Equal(t, "request body is empty", env.Err.Message)
	})

	t.Run("invalid id", func(t *testing.T) {
		for _, req := range []struct {
			method string
			path   string
			body   interface{}
		}{
			{http.MethodGet, "/api/todos/4294967296", nil},
			{http.MethodGet, "/api/todos/abc", nil},
			{http.MethodGet, "/api/todos/-1", nil},
			{http.MethodPut, "/api/todos/abc", &todo.Update{}},
			{http.MethodDelete, "/api/todos/1x", nil},
		} {
			rec, env := e.do(t, s, req.method, req.path, req.body)
			require.Equal(t, http.StatusBadRequest, rec.Code, req.method+" "+req.path)
			require.Equal(t, "Invalid ID format", env.Err.Message)
		}
	})

	t.Run("method not allowed", func(t *testing.T) {
		rec, _ := e.do(t, s, http.MethodPost, constants.URLForTodo(0), &httphandler.CreateTodoRequest{Title: "x"})
		require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}

func TestMissingIdentity(t *testing.T) {
	h := httphandler.NewTodoRequestHandler(todo.NewMemoryStore(), nil, testutils.NewLogger(t, "test"))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, constants.TodosEndpoint, nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthMetricsRecorded(t *testing.T) {
	e := newTestEnv(t)
	s, _ := testutils.NewRequestSigner(t)

	e.do(t, s, http.MethodGet, constants.GetWhoAmI, nil)
	e.do(t, nil, http.MethodGet, constants.GetWhoAmI, nil)

	families, err := e.reg.Gather()
	require.NoError(t, err)

	results := map[string]float64{}
	for _, f := range families {
		if f.GetName() != "auth_requests_total" {
			continue
		}
		for _, m := range f.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "result" {
					results[l.GetValue()] += m.GetCounter().GetValue()
				}
			}
		}
	}
	require.Equal(t, map[string]float64{"ok": 1, "MissingSignatureHeader": 1}, results)
}
