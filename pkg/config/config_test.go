package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const sampleConfig = `# gridfeed test configuration
logging:
  level: debug
credentials:
  backend: sqlite
  dsn: ${GRIDFEED_TEST_DSN}
  key: ${GRIDFEED_TEST_KEY}
sink:
  type: jsonl
  options:
    path: /tmp/out.jsonl
interval: 15m
inputs:
  infoblox_gridmanager://corp:
    username: admin
    password: s3cret # rotated on first run
    domain: gm.example.com
    usessl: "1"
    verifyssl: no
    version: "2.12"
    limit: "500"
    fields: network,comment,extattrs,options
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gridfeed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadRunConfig(t *testing.T) {
	t.Setenv("GRIDFEED_TEST_DSN", "/var/lib/gridfeed/creds.db")
	t.Setenv("GRIDFEED_TEST_KEY", "master-key")

	cfg, err := LoadRunConfig(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "/var/lib/gridfeed/creds.db", cfg.Credentials.DSN)
	assert.Equal(t, "master-key", cfg.Credentials.Key)
	assert.Equal(t, "jsonl", cfg.Sink.Type)
	assert.Equal(t, "/tmp/out.jsonl", cfg.Sink.Option("path", ""))
	assert.Equal(t, "lines", cfg.Sink.Option("format", "lines"))
	assert.Equal(t, 15*time.Minute, cfg.Interval)
	assert.Equal(t, "gridfeed", cfg.Metrics.Job)

	in, ok := cfg.Inputs["infoblox_gridmanager://corp"]
	require.True(t, ok)
	assert.Equal(t, "admin", in.Username)
	assert.Equal(t, "s3cret", in.Password)
	assert.True(t, bool(in.UseSSL))
	assert.False(t, bool(in.VerifySSL))
	assert.Equal(t, "2.12", in.Version)
	assert.Equal(t, Limit(500), in.Limit)
	assert.Equal(t, "network,comment,extattrs,options", in.Fields)
}

func TestLoadRunConfigValidation(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		errorMsg string
	}{
		{
			name:     "no inputs",
			content:  "credentials:\n  backend: memory\n",
			errorMsg: "inputs",
		},
		{
			name: "bad input name",
			content: `credentials: {backend: memory}
inputs:
  corp: {username: a, password: b, domain: c}
`,
			errorMsg: "expected kind://name",
		},
		{
			name: "domain with scheme",
			content: `credentials: {backend: memory}
inputs:
  infoblox_gridmanager://corp: {username: a, password: b, domain: "https://gm"}
`,
			errorMsg: "domain must not contain",
		},
		{
			name: "missing key for sqlite",
			content: `inputs:
  infoblox_gridmanager://corp: {username: a, password: b, domain: gm}
`,
			errorMsg: "key is required",
		},
		{
			name: "unknown compression",
			content: `credentials: {backend: memory}
sink: {type: jsonl, compression: brotli}
inputs:
  infoblox_gridmanager://corp: {username: a, password: b, domain: gm}
`,
			errorMsg: "compression must be one of",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadRunConfig(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errorMsg)
		})
	}
}

func TestFlagUnmarshal(t *testing.T) {
	tests := []struct {
		in        string
		want      bool
		wantError bool
	}{
		{in: "true", want: true},
		{in: "1", want: true},
		{in: "ON", want: true},
		{in: "y", want: true},
		{in: "false", want: false},
		{in: "0", want: false},
		{in: `""`, want: false},
		{in: "maybe", wantError: true},
		{in: "[1]", wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var out struct {
				V Flag `yaml:"v"`
			}
			err := yaml.Unmarshal([]byte("v: "+tt.in), &out)
			if tt.wantError {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, bool(out.V))
		})
	}
}

func TestLimitUnmarshal(t *testing.T) {
	var out struct {
		A Limit `yaml:"a"`
		B Limit `yaml:"b"`
		C Limit `yaml:"c"`
	}
	require.NoError(t, yaml.Unmarshal([]byte("a: 250\nb: \"750\"\nc: \"\"\n"), &out))
	assert.Equal(t, Limit(250), out.A)
	assert.Equal(t, Limit(750), out.B)
	assert.Equal(t, Limit(0), out.C)

	err := yaml.Unmarshal([]byte("a: lots\n"), &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid limit")
}

func TestSubstituteEnvVars(t *testing.T) {
	t.Setenv("GF_A", "alpha")
	t.Setenv("GF_LOOP", "${GF_LOOP}")

	assert.Equal(t, "x alpha y", substituteEnvVars("x ${GF_A} y"))
	assert.Equal(t, "${GF_LOOP}", substituteEnvVars("${GF_LOOP}"))
	assert.Equal(t, "unset: .", substituteEnvVars("unset: ${GF_NOT_SET_ANYWHERE}."))
	assert.Equal(t, "open ${brace", substituteEnvVars("open ${brace"))
}

func TestFileInputStore(t *testing.T) {
	path := writeConfig(t, sampleConfig)
	store := NewFileInputStore(path)

	err := store.UpdateInput(context.Background(), "infoblox_gridmanager", "corp", map[string]string{"password": "<encrypted>"})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, "# gridfeed test configuration")
	assert.Contains(t, content, "${GRIDFEED_TEST_KEY}")
	assert.NotContains(t, content, "s3cret")

	var cfg RunConfig
	require.NoError(t, yaml.Unmarshal(data, &cfg))
	assert.Equal(t, "<encrypted>", cfg.Inputs["infoblox_gridmanager://corp"].Password)
	assert.Equal(t, "admin", cfg.Inputs["infoblox_gridmanager://corp"].Username)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestFileInputStoreErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("missing input", func(t *testing.T) {
		store := NewFileInputStore(writeConfig(t, sampleConfig))
		err := store.UpdateInput(ctx, "infoblox_gridmanager", "west", map[string]string{"password": "x"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not found")
	})

	t.Run("missing file", func(t *testing.T) {
		store := NewFileInputStore(filepath.Join(t.TempDir(), "absent.yaml"))
		require.Error(t, store.UpdateInput(ctx, "k", "n", nil))
	})

	t.Run("no inputs section", func(t *testing.T) {
		store := NewFileInputStore(writeConfig(t, "sink: {type: jsonl}\n"))
		err := store.UpdateInput(ctx, "k", "n", nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no inputs section")
	})
}

func TestMemoryInputStore(t *testing.T) {
	store := NewMemoryInputStore()
	require.NoError(t, store.UpdateInput(context.Background(), "infoblox_gridmanager", "lab", map[string]string{"password": "<encrypted>"}))

	assert.Equal(t, map[string]string{"password": "<encrypted>"}, store.Updates("infoblox_gridmanager://lab"))
	assert.Empty(t, store.Updates("infoblox_gridmanager://other"))
}
