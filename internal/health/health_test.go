package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnknownBeforeCheck(t *testing.T) {
	c := NewChecker()
	c.RegisterFunc("journal", true, DatabaseCheck(func(context.Context) error { return nil }))

	assert.Equal(t, StatusUnknown, c.OverallStatus())
	c.Check(context.Background())
	assert.Equal(t, StatusHealthy, c.OverallStatus())
}

func TestMissingDeviceDegrades(t *testing.T) {
	c := NewChecker()
	c.RegisterFunc("1P", false, DeviceCheck(func() bool { return true }, nil))
	c.RegisterFunc("2P", false, DeviceCheck(func() bool { return false }, func() map[string]any {
		return map[string]any{"serial": "ABC"}
	}))

	results := c.Check(context.Background())
	assert.Equal(t, StatusHealthy, results["1P"].Status)
	assert.Equal(t, StatusDegraded, results["2P"].Status)
	assert.Equal(t, "ABC", results["2P"].Details["serial"])
	assert.Equal(t, StatusDegraded, c.OverallStatus())
}

func TestCriticalFailure(t *testing.T) {
	c := NewChecker()
	c.RegisterFunc("journal", true, DatabaseCheck(func(context.Context) error {
		return errors.New("disk full")
	}))
	c.Check(context.Background())

	assert.Equal(t, StatusUnhealthy, c.OverallStatus())
	r, ok := c.GetResult("journal")
	require.True(t, ok)
	assert.Equal(t, "disk full", r.Error)
}

func TestPanicAndTimeout(t *testing.T) {
	c := NewChecker()
	c.RegisterFunc("panics", false, func(context.Context) CheckResult { panic("boom") })
	c.Register(&Component{
		Name:    "slow",
		Timeout: 10 * time.Millisecond,
		Check: func(ctx context.Context) CheckResult {
			<-ctx.Done()
			time.Sleep(20 * time.Millisecond)
			return CheckResult{Status: StatusHealthy}
		},
	})

	results := c.Check(context.Background())
	assert.Equal(t, StatusUnhealthy, results["panics"].Status)
	assert.Equal(t, "boom", results["panics"].Error)
	assert.Equal(t, "check timed out", results["slow"].Message)
	assert.Equal(t, StatusDegraded, c.OverallStatus(), "non-critical failures only degrade")
}

func TestUnregister(t *testing.T) {
	c := NewChecker()
	c.RegisterFunc("2P", false, DeviceCheck(func() bool { return false }, nil))
	c.RegisterFunc("1P", false, DeviceCheck(func() bool { return true }, nil))
	assert.Equal(t, []string{"1P", "2P"}, c.Names())

	c.Unregister("2P")
	c.Check(context.Background())
	assert.Equal(t, StatusHealthy, c.OverallStatus())
}

func TestHandler(t *testing.T) {
	c := NewChecker()
	c.SetReady(true)
	c.RegisterFunc("1P", false, DeviceCheck(func() bool { return false }, nil))

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, StatusDegraded, resp.Status)
	assert.True(t, resp.Ready)
	assert.Contains(t, resp.Components, "1P")

	c.RegisterFunc("journal", true, DatabaseCheck(func(context.Context) error { return errors.New("closed") }))
	rec = httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
