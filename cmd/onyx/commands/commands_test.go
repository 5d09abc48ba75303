package commands

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/core"
	"github.com/fatih/color"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onyx-dev/onyx-database-go/pkg/config"
	"github.com/onyx-dev/onyx-database-go/pkg/query"
)

func TestParseSorts(t *testing.T) {
	tests := []struct {
		name    string
		specs   []string
		want    []query.Sort
		wantErr bool
	}{
		{name: "default ascending", specs: []string{"name"}, want: []query.Sort{query.Asc("name")}},
		{name: "explicit directions", specs: []string{"age:DESC", "name:asc"}, want: []query.Sort{query.Desc("age"), query.Asc("name")}},
		{name: "none", specs: nil, want: []query.Sort{}},
		{name: "bad direction", specs: []string{"age:up"}, wantErr: true},
		{name: "missing field", specs: []string{":desc"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseSorts(tt.specs)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReadPayload(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/in.json", []byte(`[{"id":1}]`), 0o600))
	require.NoError(t, afero.WriteFile(fs, "/bad.json", []byte(`{`), 0o600))

	tests := []struct {
		name    string
		inline  string
		path    string
		stdin   string
		want    string
		wantErr string
	}{
		{name: "inline", inline: `{"id":1}`, want: `{"id":1}`},
		{name: "file", path: "/in.json", want: `[{"id":1}]`},
		{name: "stdin", path: "-", stdin: `{"id":2}`, want: `{"id":2}`},
		{name: "both", inline: `{}`, path: "/in.json", wantErr: "either"},
		{name: "neither", wantErr: "no payload"},
		{name: "invalid", path: "/bad.json", wantErr: "not valid JSON"},
		{name: "missing file", path: "/nope.json", wantErr: "nope.json"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := readPayload(fs, tt.inline, tt.path, strings.NewReader(tt.stdin))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(got))
		})
	}
}

func TestHelpers(t *testing.T) {
	assert.True(t, isArray([]byte("  \n[1]")))
	assert.False(t, isArray([]byte(`{"a":[1]}`)))
	assert.False(t, isArray(nil))

	assert.Equal(t, "***", mask("abc"))
	assert.Equal(t, "ab****gh", mask("abcdefgh"))
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		config.EnvDatabaseID, config.EnvBaseURL, config.EnvAPIKey,
		config.EnvAPISecret, config.EnvConfigPath, config.EnvDebug,
	} {
		t.Setenv(k, "")
	}
}

func useResolver(t *testing.T, r *config.Resolver) {
	t.Helper()
	prev := newResolver
	newResolver = func() *config.Resolver { return r }
	t.Cleanup(func() { newResolver = prev })
}

func useFs(t *testing.T, fs afero.Fs) {
	t.Helper()
	prev := config.AppFs
	config.AppFs = fs
	t.Cleanup(func() { config.AppFs = prev })
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "onyx version dev")
	assert.Contains(t, out, "Go Version")
}

func TestCountCommand(t *testing.T) {
	clearEnv(t)
	useFs(t, afero.NewMemMapFs())
	useResolver(t, config.NewRestrictedResolver(config.WithTTL(0)))

	var gotPath, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotPath, gotBody = r.URL.Path, string(body)
		_, _ = w.Write([]byte(`7`))
	}))
	defer srv.Close()

	out, err := run(t,
		"--base-url", srv.URL, "--database-id", "db-1", "--api-key", "k", "--api-secret", "s",
		"count", "User", "--where", `age > 3`)
	require.NoError(t, err)
	assert.Equal(t, "7\n", out)
	assert.Equal(t, "/data/db-1/query/count/User", gotPath)
	assert.Contains(t, gotBody, `"operator":"GREATER_THAN"`)
}

func TestQueryCommandJSON(t *testing.T) {
	clearEnv(t)
	useFs(t, afero.NewMemMapFs())
	useResolver(t, config.NewRestrictedResolver(config.WithTTL(0)))
	prev := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = prev })

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "10", r.URL.Query().Get("pageSize"))
		_, _ = w.Write([]byte(`{"records":[{"id":"u1"}],"nextPage":"c2"}`))
	}))
	defer srv.Close()

	out, err := run(t,
		"--base-url", srv.URL, "--database-id", "db-1", "--api-key", "k", "--api-secret", "s", "--json",
		"query", "User", "--page-size", "10", "--sort", "id:desc")
	require.NoError(t, err)
	assert.JSONEq(t, `{"records":[{"id":"u1"}],"nextPage":"c2"}`, out)
}

func TestCommandReportsMissingConfig(t *testing.T) {
	clearEnv(t)
	useFs(t, afero.NewMemMapFs())
	useResolver(t, config.NewRestrictedResolver())

	_, err := run(t, "count", "User")
	require.Error(t, err)
	assert.True(t, config.IsConfigurationError(err))
}

func TestInitCommandWritesProfile(t *testing.T) {
	clearEnv(t)
	fs := afero.NewMemMapFs()
	useFs(t, fs)
	useResolver(t, config.NewResolver(config.WithFs(fs)))

	prevAsk := ask
	t.Cleanup(func() { ask = prevAsk })
	var asked []string
	ask = func(qs []*survey.Question, response any, _ ...survey.AskOpt) error {
		for _, q := range qs {
			asked = append(asked, q.Name)
			value := "typed-" + q.Name
			if q.Name == "baseUrl" {
				value = config.DefaultBaseURL
			}
			if err := core.WriteAnswer(response, q.Name, value); err != nil {
				return err
			}
		}
		return nil
	}

	path := filepath.Join("/profiles", "db.json")
	_, err := run(t, "--database-id", "db-1", "--api-key", "k", "init", "--path", path)
	require.NoError(t, err)
	assert.Equal(t, []string{"baseUrl", "apiSecret"}, asked)

	data, err := afero.ReadFile(fs, path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"databaseId":"db-1","apiKey":"k","apiSecret":"typed-apiSecret"}`, string(data))

	_, err = run(t, "--database-id", "db-1", "--api-key", "k", "--api-secret", "s", "init", "--path", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--force")

	_, err = run(t, "--database-id", "db-1", "--api-key", "k", "--api-secret", "s", "init", "--path", path, "--force")
	require.NoError(t, err)
}

func TestVersionCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"tag_name":"v9.0.0"}`))
	}))
	defer srv.Close()

	prevURL, prevVersion := releasesURL, Version
	releasesURL, Version = srv.URL, "1.0.0"
	t.Cleanup(func() { releasesURL, Version = prevURL, prevVersion })

	out, err := run(t, "version", "--check")
	require.NoError(t, err)
	assert.Contains(t, out, "onyx version 1.0.0")
	assert.Contains(t, out, "v9.0.0/onyx-")
}
