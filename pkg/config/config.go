// Package config resolves the credentials of an Onyx database.
//
// Values are taken field by field from, in order of precedence: the
// explicit Config, the ONYX_* environment variables, the file named by
// ConfigPath or ONYX_CONFIG_PATH, the project files in the working
// directory, and the profile files under the home directory. Results are
// cached per Resolver for a short TTL.
package config

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
)

// AppFs is the filesystem used by resolvers that are not given one.
var AppFs = afero.NewOsFs()

// Environment variables.
const (
	EnvDatabaseID = "ONYX_DATABASE_ID"
	EnvBaseURL    = "ONYX_DATABASE_BASE_URL"
	EnvAPIKey     = "ONYX_DATABASE_API_KEY"
	EnvAPISecret  = "ONYX_DATABASE_API_SECRET"
	EnvConfigPath = "ONYX_CONFIG_PATH"
	EnvDebug      = "ONYX_DEBUG"
)

// Defaults.
const (
	DefaultBaseURL           = "https://api.onyx.dev"
	DefaultMaxRetries        = 3
	DefaultRetryInitialDelay = 300 * time.Millisecond
	DefaultTTL               = 5 * time.Minute
)

// Config is what the caller supplies. Every field is optional.
type Config struct {
	BaseURL    string
	DatabaseID string
	APIKey     string
	APISecret  string
	HTTPClient *http.Client

	RetryEnabled      *bool
	MaxRetries        *int
	RetryInitialDelay time.Duration

	// ConfigPath names a credentials file that outranks the discovered ones.
	ConfigPath string
}

// Resolved is a complete configuration.
type Resolved struct {
	BaseURL    string
	DatabaseID string
	APIKey     string
	APISecret  string
	HTTPClient *http.Client

	RetryEnabled      bool
	MaxRetries        int
	RetryInitialDelay time.Duration

	// Sources lists the sources that supplied at least one value.
	Sources []string
	Debug   bool
}

// Resolver resolves and caches configuration. The zero value is not
// usable; use NewResolver or NewRestrictedResolver.
type Resolver struct {
	fs         afero.Fs
	ttl        time.Duration
	home       func() (string, error)
	workDir    string
	restricted bool
	now        func() time.Time

	mu      sync.Mutex
	cached  *Resolved
	key     string
	expires time.Time
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithFs reads files from fs instead of AppFs.
func WithFs(fs afero.Fs) ResolverOption {
	return func(r *Resolver) { r.fs = fs }
}

// WithTTL sets how long a result is reused. Zero or less disables caching.
func WithTTL(ttl time.Duration) ResolverOption {
	return func(r *Resolver) { r.ttl = ttl }
}

// WithHomeDir pins the home directory.
func WithHomeDir(dir string) ResolverOption {
	return func(r *Resolver) { r.home = func() (string, error) { return dir, nil } }
}

// WithWorkDir sets the directory searched for project files.
func WithWorkDir(dir string) ResolverOption {
	return func(r *Resolver) { r.workDir = dir }
}

// WithClock replaces time.Now, for cache expiry tests.
func WithClock(now func() time.Time) ResolverOption {
	return func(r *Resolver) { r.now = now }
}

// NewResolver returns a resolver that consults every source.
func NewResolver(opts ...ResolverOption) *Resolver {
	r := &Resolver{
		fs:      AppFs,
		ttl:     DefaultTTL,
		home:    homedir.Dir,
		workDir: ".",
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewRestrictedResolver returns a resolver limited to the explicit config
// and environment variables, for runtimes without a filesystem.
func NewRestrictedResolver(opts ...ResolverOption) *Resolver {
	r := NewResolver(opts...)
	r.restricted = true
	return r
}

// Default is the process-wide resolver.
var Default = NewResolver()

// Invalidate drops the cached result.
func (r *Resolver) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cached = nil
	r.key = ""
}

// Resolve returns the configuration for in, reusing a cached result when
// in is unchanged and the TTL has not expired.
func (r *Resolver) Resolve(in Config) (*Resolved, error) {
	key := cacheKey(in)

	r.mu.Lock()
	if r.cached != nil && r.key == key && r.now().Before(r.expires) {
		out := *r.cached
		r.mu.Unlock()
		out.HTTPClient = in.HTTPClient
		return &out, nil
	}
	r.mu.Unlock()

	res, err := r.resolve(in)
	if err != nil {
		return nil, err
	}

	if r.ttl > 0 {
		r.mu.Lock()
		cached := *res
		r.cached = &cached
		r.key = key
		r.expires = r.now().Add(r.ttl)
		r.mu.Unlock()
	}
	return res, nil
}

type fields struct {
	baseURL    string
	databaseID string
	apiKey     string
	apiSecret  string
}

// merge fills the empty fields of f from lower and reports whether lower
// supplied anything.
func (f *fields) merge(lower fields) bool {
	used := false
	fill := func(dst *string, src string) {
		if *dst == "" && src != "" {
			*dst = src
			used = true
		}
	}
	fill(&f.baseURL, lower.baseURL)
	fill(&f.databaseID, lower.databaseID)
	fill(&f.apiKey, lower.apiKey)
	fill(&f.apiSecret, lower.apiSecret)
	return used
}

func (f fields) missing() []string {
	var out []string
	if f.databaseID == "" {
		out = append(out, "databaseId")
	}
	if f.apiKey == "" {
		out = append(out, "apiKey")
	}
	if f.apiSecret == "" {
		out = append(out, "apiSecret")
	}
	return out
}

func (f fields) complete() bool {
	return f.databaseID != "" && f.apiKey != "" && f.apiSecret != ""
}

type envValues struct {
	fields
	configPath string
	debug      bool
}

func readEnv() envValues {
	v := viper.New()
	_ = v.BindEnv("databaseId", EnvDatabaseID)
	_ = v.BindEnv("baseUrl", EnvBaseURL)
	_ = v.BindEnv("apiKey", EnvAPIKey)
	_ = v.BindEnv("apiSecret", EnvAPISecret)
	_ = v.BindEnv("configPath", EnvConfigPath)
	_ = v.BindEnv("debug", EnvDebug)

	debug, _ := strconv.ParseBool(strings.TrimSpace(v.GetString("debug")))
	return envValues{
		fields: fields{
			baseURL:    strings.TrimSpace(v.GetString("baseUrl")),
			databaseID: strings.TrimSpace(v.GetString("databaseId")),
			apiKey:     strings.TrimSpace(v.GetString("apiKey")),
			apiSecret:  strings.TrimSpace(v.GetString("apiSecret")),
		},
		configPath: strings.TrimSpace(v.GetString("configPath")),
		debug:      debug,
	}
}

func (r *Resolver) resolve(in Config) (*Resolved, error) {
	acc := fields{
		baseURL:    strings.TrimSpace(in.BaseURL),
		databaseID: strings.TrimSpace(in.DatabaseID),
		apiKey:     strings.TrimSpace(in.APIKey),
		apiSecret:  strings.TrimSpace(in.APISecret),
	}
	consulted := []string{"explicit config"}
	var used []string
	if acc != (fields{}) {
		used = append(used, "explicit config")
	}

	env := readEnv()
	consulted = append(consulted, "environment variables")
	if acc.merge(env.fields) {
		used = append(used, "environment variables")
	}

	configPath := strings.TrimSpace(in.ConfigPath)
	if configPath == "" {
		configPath = env.configPath
	}

	if r.restricted {
		if configPath != "" {
			return nil, &ConfigurationError{
				Msg:     "config file paths are not supported by the restricted resolver",
				Path:    configPath,
				Sources: consulted,
			}
		}
	} else {
		var err error
		consulted, used, err = r.probeFiles(&acc, configPath, consulted, used)
		if err != nil {
			return nil, err
		}
	}

	if missing := acc.missing(); len(missing) > 0 {
		return nil, &ConfigurationError{Missing: missing, Sources: consulted}
	}

	res := &Resolved{
		BaseURL:           strings.TrimRight(acc.baseURL, "/"),
		DatabaseID:        acc.databaseID,
		APIKey:            acc.apiKey,
		APISecret:         acc.apiSecret,
		HTTPClient:        in.HTTPClient,
		RetryEnabled:      true,
		MaxRetries:        DefaultMaxRetries,
		RetryInitialDelay: DefaultRetryInitialDelay,
		Sources:           used,
		Debug:             env.debug,
	}
	if res.BaseURL == "" {
		res.BaseURL = DefaultBaseURL
	}
	if in.RetryEnabled != nil {
		res.RetryEnabled = *in.RetryEnabled
	}
	if in.MaxRetries != nil {
		res.MaxRetries = *in.MaxRetries
	}
	if in.RetryInitialDelay > 0 {
		res.RetryInitialDelay = in.RetryInitialDelay
	}
	return res, nil
}

func cacheKey(in Config) string {
	var b strings.Builder
	for _, s := range []string{in.BaseURL, in.DatabaseID, in.APIKey, in.APISecret, in.ConfigPath} {
		b.WriteString(strconv.Quote(s))
		b.WriteByte('|')
	}
	if in.RetryEnabled != nil {
		b.WriteString(strconv.FormatBool(*in.RetryEnabled))
	}
	b.WriteByte('|')
	if in.MaxRetries != nil {
		b.WriteString(strconv.Itoa(*in.MaxRetries))
	}
	b.WriteByte('|')
	b.WriteString(in.RetryInitialDelay.String())
	return b.String()
}
