package qim

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokmz/qim/pkg/errors"
	"github.com/tokmz/qim/pkg/ws"
)

type echoReq struct {
	ID   string `uri:"id"`
	Name string `json:"name" form:"name" binding:"required"`
}

type echoResp struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func serve(t *testing.T, e *Engine, method, target, body string) (*httptest.ResponseRecorder, Response) {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	w := httptest.NewRecorder()
	e.Handler().ServeHTTP(w, req)
	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return w, resp
}

func TestHandle_BindsBodyAndURI(t *testing.T) {
	e := New(WithMode("test"))
	r := e.Group("/api")
	Handle[echoReq, echoResp](r.PUT, "/items/:id", func(c *Context, req *echoReq) (*echoResp, error) {
		return &echoResp{ID: req.ID, Name: req.Name}, nil
	})

	w, resp := serve(t, e, http.MethodPut, "/api/items/42", `{"name":"ada"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]any{"id": "42", "name": "ada"}, resp.Data)

	w, resp = serve(t, e, http.MethodPut, "/api/items/42", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, errors.ErrBadRequest.Code, resp.Code)
}

func TestHandle_QueryBinding(t *testing.T) {
	e := New(WithMode("test"))
	Handle[echoReq, echoResp](e.RouterGroup().GET, "/items", func(c *Context, req *echoReq) (*echoResp, error) {
		return &echoResp{Name: req.Name}, nil
	})

	_, resp := serve(t, e, http.MethodGet, "/items?name=bob", "")
	assert.Equal(t, map[string]any{"id": "", "name": "bob"}, resp.Data)
}

func TestRespondError(t *testing.T) {
	e := New(WithMode("test"))
	bizErr := errors.New(5001, http.StatusForbidden, "not a participant", nil)
	HandleOnly[echoResp](e.RouterGroup().GET, "/biz", func(c *Context) (*echoResp, error) {
		return nil, bizErr.WithError(context.Canceled)
	})
	HandleOnly[echoResp](e.RouterGroup().GET, "/plain", func(c *Context) (*echoResp, error) {
		return nil, context.Canceled
	})

	w, resp := serve(t, e, http.MethodGet, "/biz", "")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, 5001, resp.Code)
	assert.Equal(t, "not a participant", resp.Message)

	w, resp = serve(t, e, http.MethodGet, "/plain", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, errors.ErrServer.Code, resp.Code)
}

func TestPage_NilListIsEmptyArray(t *testing.T) {
	e := New(WithMode("test"))
	e.RouterGroup().GET("/page", func(c *Context) { c.Page(nil, 0, 0, 20) })

	w := httptest.NewRecorder()
	e.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/page", nil))
	assert.JSONEq(t, `{"code":200,"message":"success","data":{"list":[],"total":0,"page":0,"size":20}}`, w.Body.String())
}

func TestRecovery(t *testing.T) {
	e := Default(WithMode("test"))
	e.RouterGroup().GET("/boom", func(c *Context) { panic("boom") })

	w, resp := serve(t, e, http.MethodGet, "/boom", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, http.StatusInternalServerError, resp.Code)
}

func TestPrincipalHelpers(t *testing.T) {
	e := New(WithMode("test"))
	e.Use(func(c *Context) {
		SetContextPrincipal(c, &ws.Principal{UserID: "u1", Username: "ada"})
		c.Next()
	})
	e.RouterGroup().GET("/me", func(c *Context) {
		p := GetContextPrincipal(c)
		c.Success(map[string]string{"uid": GetContextUid(c), "username": p.Username})
	})

	_, resp := serve(t, e, http.MethodGet, "/me", "")
	assert.Equal(t, map[string]any{"uid": "u1", "username": "ada"}, resp.Data)
}

func TestEngine_StartShutdown(t *testing.T) {
	var before, after bool
	e := New(
		WithMode("test"),
		WithAddr("127.0.0.1:0"),
		WithBeforeShutdown(func() { before = true }),
		WithAfterShutdown(func() { after = true }),
	)
	e.RouterGroup().GET("/ping", func(c *Context) { c.Nil() })

	require.NoError(t, e.Start(context.Background()))
	assert.Error(t, e.Start(context.Background()), "second start")

	res, err := http.Get("http://" + e.Addr() + "/ping")
	require.NoError(t, err)
	_ = res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)

	require.NoError(t, e.Shutdown(context.Background()))
	assert.True(t, before)
	assert.True(t, after)
}
