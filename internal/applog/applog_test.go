package applog_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"log"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"c2cmarket/internal/applog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	log.SetOutput(&buf)
	flags := log.Flags()
	log.SetFlags(0)
	t.Cleanup(func() {
		log.SetOutput(os.Stderr)
		log.SetFlags(flags)
	})
	return &buf
}

func TestAuditCarriesRequestContext(t *testing.T) {
	buf := captureLog(t)

	app := fiber.New()
	app.Use(requestid.New())
	app.Post("/admin/thing", func(c *fiber.Ctx) error {
		c.Locals(applog.UserKey, "admin-1")
		c.Status(fiber.StatusAccepted)
		applog.Audit(c, "admin.thing", map[string]any{"id": "p1"})
		return nil
	})

	resp, err := app.Test(httptest.NewRequest("POST", "/admin/thing", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusAccepted, resp.StatusCode)

	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &rec))
	assert.Equal(t, "audit", rec["level"])
	assert.Equal(t, "admin.thing", rec["action"])
	assert.Equal(t, "admin-1", rec["user_id"])
	assert.Equal(t, "/admin/thing", rec["path"])
	assert.Equal(t, float64(fiber.StatusAccepted), rec["status"])
	assert.NotEmpty(t, rec["req_id"])
	assert.Equal(t, map[string]any{"id": "p1"}, rec["fields"])
}

func TestErrorWithoutContext(t *testing.T) {
	buf := captureLog(t)

	applog.Error(nil, "store.refresh", errors.New("boom"), nil)

	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &rec))
	assert.Equal(t, "error", rec["level"])
	assert.Equal(t, "boom", rec["err"])
	assert.NotContains(t, rec, "path")
}
