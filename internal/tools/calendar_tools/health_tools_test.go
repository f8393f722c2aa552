package calendar_tools

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/healthcal/internal/tools/common"
)

func TestListCalendarsTool(t *testing.T) {
	f := newToolFixture(t, true, nil)

	result := f.call(t, "calendar_list_calendars", nil)
	assert.True(t, result.IsError)
	assert.Contains(t, common.ResultText(result), "healthcal auth login")

	f.login(t)
	result = f.call(t, "calendar_list_calendars", nil)
	require.False(t, result.IsError, common.ResultText(result))
	assert.Contains(t, common.ResultText(result), `"accessRole": "owner"`)
}

func TestHealthInsightsTool(t *testing.T) {
	var gotPath string
	f := newToolFixture(t, true, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"data":{
			"insights":[{"title":"Blood sugar","description":"Slightly high."}],
			"recommendations":[{"title":"Walk daily","description":"Thirty minutes.","priority":"high"}]
		}}`))
	})

	result := f.call(t, "health_insights", map[string]interface{}{"document": `{"pages":[]}`})
	require.False(t, result.IsError, common.ResultText(result))
	assert.Equal(t, "/api/health-insights/get-health-insights", gotPath)
	assert.Contains(t, common.ResultText(result), "1. Blood sugar")
	assert.NotContains(t, common.ResultText(result), "Walk daily")

	result = f.call(t, "health_recommendations", map[string]interface{}{"document": `{"pages":[]}`})
	require.False(t, result.IsError, common.ResultText(result))
	assert.Equal(t, "/api/health-insights/get-health-recommendations", gotPath)
	assert.Contains(t, common.ResultText(result), "Walk daily [high]")

	result = f.call(t, "health_insights", map[string]interface{}{"document": "not json"})
	assert.True(t, result.IsError)
}

func TestHealthChatTool_RequiresSession(t *testing.T) {
	f := newToolFixture(t, true, nil)
	f.sess.Config.Backend.SessionToken = ""

	result := f.call(t, "health_chat", map[string]interface{}{"message": "hello"})
	assert.True(t, result.IsError)
	assert.Contains(t, common.ResultText(result), "healthcal account login")
}

func TestHealthChatTool(t *testing.T) {
	var body map[string]interface{}
	f := newToolFixture(t, true, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer jwt-1", r.Header.Get("Authorization"))
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"response":"Keep taking Metformin with food."}`))
	})
	f.sess.Config.Backend.SessionToken = "jwt-1"

	result := f.call(t, "health_chat", map[string]interface{}{"message": "When do I take Metformin?", "includeHealthContext": false})
	require.False(t, result.IsError, common.ResultText(result))
	assert.Equal(t, "Keep taking Metformin with food.", common.ResultText(result))
	assert.Equal(t, false, body["include_health_context"])
}

func TestUploadDocumentTool(t *testing.T) {
	f := newToolFixture(t, false, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/upload/upload-pdf", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"data":{"text":"HbA1c 6.1"}}`))
	})

	path := filepath.Join(t.TempDir(), "labs.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4"), 0o600))

	result := f.call(t, "health_upload_document", map[string]interface{}{"path": path})
	require.False(t, result.IsError, common.ResultText(result))
	assert.JSONEq(t, `{"text":"HbA1c 6.1"}`, common.ResultText(result))

	result = f.call(t, "health_upload_document", map[string]interface{}{"path": filepath.Join(t.TempDir(), "missing.pdf")})
	assert.True(t, result.IsError)
}
