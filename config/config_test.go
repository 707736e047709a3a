package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feiskyer/swarm-tools/openapi"
)

func fakeEnv(vars map[string]string) lookupFunc {
	return func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	}
}

// unsetEnv removes key for the duration of the test.
func unsetEnv(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	require.NoError(t, os.Unsetenv(key))
}

// chdir changes the working directory for the duration of the test.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := cfg.applyEnv(fakeEnv(map[string]string{
		"AZURE_OPENAI_DEPLOYMENT_NAME": "gpt-4o-deploy",
		"AZURE_API_KEY":                "key",
		"AZURE_API_BASE":               "https://example.openai.azure.com",
		"OPENAPI_BASE_URL":             "https://pets.example.com",
		"OPENAPI_SECURITY_TARGETS":     "GET /pet/{petId}, ,post /pet",
		"OPENAPI_FETCH_TIMEOUT":        "3s",
		"AGENT_MAX_TURNS":              "4",
		"LOG_LEVEL":                    "",
	}))
	require.NoError(t, err)

	assert.Equal(t, "gpt-4o-deploy", cfg.Azure.Deployment)
	assert.Equal(t, "2024-06-01", cfg.Azure.APIVersion)
	assert.Equal(t, "https://pets.example.com", cfg.OpenAPI.BaseURL)
	assert.Equal(t, []string{"GET /pet/{petId}", "POST /pet"}, cfg.OpenAPI.SecurityTargets)
	assert.Equal(t, 3*time.Second, cfg.OpenAPI.FetchTimeout)
	assert.Equal(t, 4, cfg.Agent.MaxTurns)
	assert.Equal(t, "info", cfg.Log.Level, "empty values keep the default")
	assert.NoError(t, cfg.ValidateAzure())

	t.Run("empty targets list clears the default", func(t *testing.T) {
		cfg := Default()
		require.NoError(t, cfg.applyEnv(fakeEnv(map[string]string{"OPENAPI_SECURITY_TARGETS": ""})))
		assert.Empty(t, cfg.OpenAPI.SecurityTargets)
	})

	t.Run("invalid values", func(t *testing.T) {
		cfg := Default()
		assert.Error(t, cfg.applyEnv(fakeEnv(map[string]string{"OPENAPI_FETCH_TIMEOUT": "soon"})))
		assert.Error(t, cfg.applyEnv(fakeEnv(map[string]string{"AGENT_MAX_TURNS": "many"})))
		assert.Error(t, cfg.applyEnv(fakeEnv(map[string]string{"OPENAPI_SECURITY_TARGETS": "GET /pet, pet"})))
	})
}

func TestValidateAzure(t *testing.T) {
	cfg := Default()
	cfg.Azure.APIVersion = ""

	err := cfg.ValidateAzure()
	require.ErrorIs(t, err, ErrMissingConfig)
	assert.Contains(t, err.Error(), "AZURE_OPENAI_DEPLOYMENT_NAME, AZURE_API_KEY, AZURE_API_BASE, AZURE_API_VERSION")
}

func TestLoad(t *testing.T) {
	for _, key := range []string{
		"AZURE_OPENAI_DEPLOYMENT_NAME", "AZURE_API_KEY", "AZURE_API_BASE", "AZURE_API_VERSION",
		"OPENAPI_SPEC_URL", "OPENAPI_SPEC_FILE", "OPENAPI_BASE_URL", "OPENAPI_DEFAULT_SERVER_PATH",
		"OPENAPI_ALLOWED_SCHEME", "OPENAPI_SECURITY_TARGETS", "OPENAPI_API_KEY", "OPENAPI_FETCH_TIMEOUT",
		"AGENT_MAX_TURNS", "LOG_LEVEL", "LOG_FORMAT",
	} {
		unsetEnv(t, key)
	}

	dir := t.TempDir()
	chdir(t, dir)

	t.Run("defaults without files", func(t *testing.T) {
		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, Default(), cfg)
	})

	t.Run("missing explicit file", func(t *testing.T) {
		_, err := Load(filepath.Join(dir, "nope.yaml"))
		assert.Error(t, err)
	})

	t.Run("file then env", func(t *testing.T) {
		require.NoError(t, os.WriteFile(DefaultPath, []byte(`
azure:
  deployment: from-file
  api_base: https://file.openai.azure.com
openapi:
  base_url: https://file.example.com
  security_targets:
    - GET /store/inventory
agent:
  max_turns: 7
`), 0o600))
		require.NoError(t, os.WriteFile(".env", []byte("AZURE_API_KEY=from-dotenv\nOPENAPI_BASE_URL=https://dotenv.example.com\n"), 0o600))
		t.Setenv("AZURE_OPENAI_DEPLOYMENT_NAME", "from-env")

		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, "from-env", cfg.Azure.Deployment)
		assert.Equal(t, "from-dotenv", cfg.Azure.APIKey)
		assert.Equal(t, "https://file.openai.azure.com", cfg.Azure.APIBase)
		assert.Equal(t, "https://dotenv.example.com", cfg.OpenAPI.BaseURL)
		assert.Equal(t, []string{"GET /store/inventory"}, cfg.OpenAPI.SecurityTargets)
		assert.Equal(t, 7, cfg.Agent.MaxTurns)
		assert.Equal(t, 5*time.Minute, cfg.Agent.Timeout)
	})

	t.Run("invalid yaml", func(t *testing.T) {
		path := filepath.Join(dir, "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("azure: [unclosed"), 0o600))
		_, err := Load(path)
		assert.Error(t, err)
	})
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := Default()
	cfg.Azure.Deployment = "deploy"
	require.NoError(t, cfg.Save(path))

	var loaded Config
	require.NoError(t, loaded.loadFile(path))
	assert.Equal(t, cfg, loaded)
}

func TestOpenAPIConfig(t *testing.T) {
	cfg := Default().OpenAPI

	n, err := cfg.Normalizer()
	require.NoError(t, err)
	assert.Equal(t, "https://petstore3.swagger.io", n.BaseURL)
	assert.Equal(t, "api_key", n.AllowedScheme)
	assert.Equal(t, openapi.DefaultServerPath, n.DefaultServerPath)
	assert.Equal(t, []openapi.Target{
		{Path: "/pet/{petId}", Method: "get"},
		{Path: "/pet/{petId}", Method: "post"},
		{Path: "/pet/{petId}", Method: "delete"},
		{Path: "/store/inventory", Method: "get"},
	}, n.Targets)

	assert.Nil(t, cfg.Credential())
	cfg.APIKey = "secret"
	assert.Equal(t, &openapi.Credential{Scheme: "api_key", Value: "secret"}, cfg.Credential())

	cfg.SecurityTargets = []string{"pet"}
	_, err = cfg.Normalizer()
	assert.Error(t, err)
}

func TestRateLimit(t *testing.T) {
	cfg := Default()
	assert.Nil(t, cfg.OpenAPI.Limiter())

	require.NoError(t, cfg.applyEnv(fakeEnv(map[string]string{"OPENAPI_RATE_LIMIT": "2.5"})))
	assert.Equal(t, 2.5, cfg.OpenAPI.RateLimit)
	limiter := cfg.OpenAPI.Limiter()
	require.NotNil(t, limiter)
	assert.Equal(t, 1, limiter.Burst())

	assert.Error(t, cfg.applyEnv(fakeEnv(map[string]string{"OPENAPI_RATE_LIMIT": "-1"})))
}
