package server

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newJSONContext(t *testing.T, body string) *gin.Context {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("POST", "/", strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	return c
}

func TestBindStrict(t *testing.T) {
	var req queryRequest
	c := newJSONContext(t, `{"query": "how to reset the PLC"}`)
	require.NoError(t, bindStrict(c, &req))
	assert.Equal(t, "how to reset the PLC", req.Query)
}

func TestBindStrict_UnknownField(t *testing.T) {
	var req queryRequest
	c := newJSONContext(t, `{"query": "x", "querry": "typo"}`)
	err := bindStrict(c, &req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid request body")
}

func TestBindStrict_MalformedJSON(t *testing.T) {
	var req queryRequest
	c := newJSONContext(t, `{"query": `)
	assert.Error(t, bindStrict(c, &req))
}

func TestParseWindow(t *testing.T) {
	from, to, err := parseWindow("2026-08-01T00:00:00Z", "2026-08-08T00:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC), from)
	assert.Equal(t, 7*24*time.Hour, to.Sub(from))
}

func TestParseWindow_Defaults(t *testing.T) {
	from, to, err := parseWindow("", "")
	require.NoError(t, err)
	assert.InDelta(t, 7*24.0, to.Sub(from).Hours(), 25)
}

func TestParseWindow_Invalid(t *testing.T) {
	_, _, err := parseWindow("yesterday", "")
	assert.Error(t, err)
	_, _, err = parseWindow("", "2026-08-08")
	assert.Error(t, err)
}
