package web

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func newBodyServer(t *testing.T, limit int64) *Server {
	t.Helper()
	s, _ := newTestServer(t)
	s.Config.BodyLimit = limit
	s.UseBodyParsing()
	s.Router.POST("/echo", func(c *gin.Context) {
		c.JSON(http.StatusOK, Body(c))
	})
	return s
}

func TestBodyParsingJSONAndForm(t *testing.T) {
	s := newBodyServer(t, 0)

	w := doRequest(s, http.MethodPost, "/echo", `{"name":"ada","age":36}`,
		http.Header{"Content-Type": []string{"application/json; charset=utf-8"}})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"name":"ada","age":36}`, w.Body.String())

	w = doRequest(s, http.MethodPost, "/echo", `a=1&b=2&b=3`,
		http.Header{"Content-Type": []string{"application/x-www-form-urlencoded"}})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"a":"1","b":["2","3"]}`, w.Body.String())

	// an empty body and a null body both give an empty, writable map
	s.Router.POST("/mark", func(c *gin.Context) {
		body := Body(c)
		body["seen"] = true
		c.JSON(http.StatusOK, body)
	})
	for _, payload := range []string{"null", ""} {
		req := httptest.NewRequest(http.MethodPost, "/mark", strings.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		s.Router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code, payload)
		assert.JSONEq(t, `{"seen":true}`, w.Body.String(), payload)
	}

	// other content types are left alone
	w = doRequest(s, http.MethodPost, "/echo", `plain`,
		http.Header{"Content-Type": []string{"text/plain"}})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{}`, w.Body.String())
}

func TestBodyParsingRejectsBadBodies(t *testing.T) {
	s := newBodyServer(t, 16)
	jsonHeader := http.Header{"Content-Type": []string{"application/json"}}

	w := doRequest(s, http.MethodPost, "/echo", `{"name":`, jsonHeader)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(s, http.MethodPost, "/echo", `{"name":"`+strings.Repeat("x", 100)+`"}`, jsonHeader)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	w = doRequest(s, http.MethodPost, "/echo", "a="+strings.Repeat("x", 100),
		http.Header{"Content-Type": []string{"application/x-www-form-urlencoded"}})
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}
