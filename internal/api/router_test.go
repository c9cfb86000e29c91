package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/christy136/AutoFlowAI/internal/api"
	"github.com/christy136/AutoFlowAI/internal/api/handlers"
	"github.com/christy136/AutoFlowAI/internal/artifacts"
	"github.com/christy136/AutoFlowAI/internal/audit"
	"github.com/christy136/AutoFlowAI/internal/config"
	"github.com/christy136/AutoFlowAI/internal/llm"
	"github.com/christy136/AutoFlowAI/internal/metrics"
	"github.com/christy136/AutoFlowAI/internal/profiles"
	"github.com/christy136/AutoFlowAI/internal/remote/remotetest"
	"github.com/christy136/AutoFlowAI/internal/service"
)

const llmResponse = "```json\n{\"pipeline_type\":\"adf\",\"name\":\"CopySales\",\"source\":{\"type\":\"blob\",\"path\":\"raw/sales.csv\"},\"sink\":{\"type\":\"snowflake\",\"table\":\"SALES\"},\"schedule\":\"once\",}\n```"

func newServer(t *testing.T, gen llm.Generator, auth config.AuthConfig) *httptest.Server {
	t.Helper()
	root := t.TempDir()
	cfg := &config.Config{
		Version: "test",
		Auth:    auth,
		Azure: config.AzureConfig{
			BlobLinkedService:      "AzureBlobStorageLinkedService",
			SnowflakeLinkedService: "Snowflake_LS",
			SourceDataset:          "SourceDataset",
			SinkDataset:            "SinkDataset",
		},
	}
	fake := remotetest.New("sub-1", "rg", "adf")
	fake.StorageAccounts["acct"] = true
	fake.Containers["raw"] = []string{"sales.csv"}

	sink, err := audit.NewFileSink(filepath.Join(root, "logs"))
	require.NoError(t, err)
	reg := prometheus.NewRegistry()

	svc := service.New(service.Options{
		Config:    cfg,
		Generator: gen,
		Remote:    fake,
		Profiles:  profiles.NewStore(filepath.Join(root, "profiles")),
		Artifacts: artifacts.NewStore(filepath.Join(root, "output")),
		Audit:     audit.New(sink),
		Metrics:   metrics.New(reg),
		Env:       func(string) string { return "" },
	})
	srv := httptest.NewServer(api.NewRouter(cfg, handlers.New(svc), reg))
	t.Cleanup(srv.Close)
	return srv
}

func post(t *testing.T, url string, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func get(t *testing.T, url string) (*http.Response, map[string]interface{}) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func fullContext() map[string]interface{} {
	return map[string]interface{}{
		"subscription_id":             "sub-1",
		"resource_group":              "rg",
		"factory_name":                "adf",
		"storage_account_name":        "acct",
		"storage_account_key":         "a2V5",
		"container":                   "raw",
		"blob_name":                   "sales.csv",
		"snowflake_schema":            "PUBLIC",
		"snowflake_table":             "SALES",
		"snowflake_connection_string": "jdbc:snowflake://acct",
	}
}

// ─── Health ──────────────────────────────────────────────────

func TestHealthAndVersion(t *testing.T) {
	srv := newServer(t, llm.Static{}, config.AuthConfig{})

	resp, body := get(t, srv.URL+"/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "healthy", body["status"])

	_, body = get(t, srv.URL+"/version")
	assert.Equal(t, "test", body["version"])
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newServer(t, llm.Static{Content: llmResponse}, config.AuthConfig{})
	post(t, srv.URL+"/api/v1/precheck", map[string]interface{}{"context": fullContext()})

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "autoflow_operations_total")
}

// ─── Generate ────────────────────────────────────────────────

func TestGenerate_Deployed(t *testing.T) {
	srv := newServer(t, llm.Static{Content: llmResponse}, config.AuthConfig{})

	resp, body := post(t, srv.URL+"/api/v1/generate", map[string]interface{}{
		"requirement": "copy sales into snowflake",
		"context":     fullContext(),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "deployed", body["status"])
	assert.NotEmpty(t, body["saved_to"])
}

func TestGenerate_MissingRequirement(t *testing.T) {
	srv := newServer(t, llm.Static{Content: llmResponse}, config.AuthConfig{})

	resp, body := post(t, srv.URL+"/api/v1/generate", map[string]interface{}{"context": fullContext()})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "input", body["stage"])
}

func TestGenerate_BadLLMOutput(t *testing.T) {
	srv := newServer(t, llm.Static{Content: `{"pipeline_type": "glue"}`}, config.AuthConfig{})

	resp, body := post(t, srv.URL+"/api/v1/generate", map[string]interface{}{
		"requirement": "copy",
		"context":     fullContext(),
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Invalid structured output from LLM", body["error"])
	assert.Contains(t, body["reason"], "schema")

	_, audits := get(t, srv.URL+"/api/v1/audit?limit=5")
	events := audits["events"].([]interface{})
	require.Len(t, events, 1)
	assert.Equal(t, "validation_error", events[0].(map[string]interface{})["type"])
}

func TestGenerate_BlockedReturns200(t *testing.T) {
	srv := newServer(t, llm.Static{Content: llmResponse}, config.AuthConfig{})
	ctx := fullContext()
	delete(ctx, "storage_account_key")

	resp, body := post(t, srv.URL+"/api/v1/generate", map[string]interface{}{"requirement": "copy", "context": ctx})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "blocked", body["status"])
	assert.Contains(t, body["missing_inputs"], "storage_account_key")
}

func TestGenerate_NonStringContextValue(t *testing.T) {
	srv := newServer(t, llm.Static{Content: llmResponse}, config.AuthConfig{})
	ctx := fullContext()
	ctx["blob_name"] = map[string]interface{}{"nested": true}

	resp, body := post(t, srv.URL+"/api/v1/generate", map[string]interface{}{"requirement": "copy", "context": ctx})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Invalid request body", body["error"])
}

// ─── Precheck ────────────────────────────────────────────────

func TestPrecheck(t *testing.T) {
	srv := newServer(t, llm.Static{}, config.AuthConfig{})

	resp, body := post(t, srv.URL+"/api/v1/precheck", map[string]interface{}{"context": fullContext()})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
	assert.Len(t, body["autofix_actions"], 4)

	resp, body = post(t, srv.URL+"/api/v1/precheck", map[string]interface{}{"context": fullContext(), "auto_fix": false})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, body["autofix_actions"])
}

// ─── Profiles & secrets ──────────────────────────────────────

func TestProfiles_SaveListActivate(t *testing.T) {
	srv := newServer(t, llm.Static{}, config.AuthConfig{})

	resp, body := post(t, srv.URL+"/api/v1/profiles", map[string]interface{}{
		"account": map[string]interface{}{"name": "prod", "subscription_id": "sub-1", "resource_group": "rg", "factory_name": "adf"},
		"usecase": map[string]interface{}{"blob_container": "raw", "blob_name": "sales.csv"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.HasSuffix(body["account_profile"].(string), "account-prod.json"))
	assert.True(t, strings.HasSuffix(body["usecase_profile"].(string), "usecase-blob2sf-default.json"))

	_, listing := get(t, srv.URL+"/api/v1/profiles")
	assert.Equal(t, []interface{}{"prod"}, listing["accounts"])

	resp, _ = post(t, srv.URL+"/api/v1/profiles/activate", map[string]string{"account": "prod", "usecase": "blob2sf-default"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = post(t, srv.URL+"/api/v1/profiles/activate", map[string]string{"account": "missing", "usecase": "blob2sf-default"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = post(t, srv.URL+"/api/v1/profiles/activate", map[string]string{"account": "../etc", "usecase": "x"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSecretsStatus(t *testing.T) {
	srv := newServer(t, llm.Static{}, config.AuthConfig{})
	resp, body := get(t, srv.URL+"/api/v1/secrets/status")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	secrets := body["secrets"].(map[string]interface{})
	assert.Contains(t, secrets, "STORAGE_ACCOUNT_KEY")
}

// ─── Artifacts ───────────────────────────────────────────────

func TestValidateArtifact(t *testing.T) {
	srv := newServer(t, llm.Static{}, config.AuthConfig{})

	resp, body := post(t, srv.URL+"/api/v1/artifacts/validate", map[string]interface{}{
		"name": "P",
		"properties": map[string]interface{}{
			"activities": []interface{}{map[string]interface{}{"name": "A", "type": "Copy"}},
		},
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["ok"])

	resp, body = post(t, srv.URL+"/api/v1/artifacts/validate", map[string]interface{}{"name": "P"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, false, body["ok"])
}

// ─── Auth ────────────────────────────────────────────────────

func TestAPIKeyRequired(t *testing.T) {
	srv := newServer(t, llm.Static{}, config.AuthConfig{APIKeys: "secret", APIKeyHeader: "X-API-Key"})

	resp, _ := get(t, srv.URL+"/api/v1/profiles")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/v1/profiles", nil)
	require.NoError(t, err)
	req.Header.Set("X-API-Key", "secret")
	ok, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	ok.Body.Close()
	assert.Equal(t, http.StatusOK, ok.StatusCode)

	resp, _ = get(t, srv.URL+"/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
