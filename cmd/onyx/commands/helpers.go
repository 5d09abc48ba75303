package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/afero"

	"github.com/onyx-dev/onyx-database-go/internal/filterexpr"
	"github.com/onyx-dev/onyx-database-go/pkg/config"
	"github.com/onyx-dev/onyx-database-go/pkg/onyx"
	"github.com/onyx-dev/onyx-database-go/pkg/query"
)

// newResolver is swapped in tests.
var newResolver = func() *config.Resolver { return config.Default }

func (g *globalFlags) config() config.Config {
	return config.Config{
		DatabaseID: g.databaseID,
		BaseURL:    g.baseURL,
		APIKey:     g.apiKey,
		APISecret:  g.apiSecret,
		ConfigPath: g.configPath,
	}
}

func (g *globalFlags) open(opts ...onyx.Option) (*onyx.DB, error) {
	base := []onyx.Option{
		onyx.WithConfig(g.config()),
		onyx.WithResolver(newResolver()),
	}
	return onyx.Open(append(base, opts...)...)
}

// applyWhere parses expr and adds it to b. An empty expr is a no-op.
func applyWhere[T any](b *query.Builder[T], expr string) error {
	if strings.TrimSpace(expr) == "" {
		return nil
	}
	cond, err := filterexpr.Parse(expr)
	if err != nil {
		return err
	}
	b.Where(cond)
	return nil
}

// parseSorts reads "field" or "field:asc|desc" entries.
func parseSorts(specs []string) ([]query.Sort, error) {
	sorts := make([]query.Sort, 0, len(specs))
	for _, spec := range specs {
		field, dir, _ := strings.Cut(spec, ":")
		field = strings.TrimSpace(field)
		if field == "" {
			return nil, fmt.Errorf("invalid sort %q", spec)
		}
		switch strings.ToLower(strings.TrimSpace(dir)) {
		case "", "asc":
			sorts = append(sorts, query.Asc(field))
		case "desc":
			sorts = append(sorts, query.Desc(field))
		default:
			return nil, fmt.Errorf("invalid sort direction in %q", spec)
		}
	}
	return sorts, nil
}

// readPayload returns the JSON given inline, from a file, or from stdin
// when path is "-".
func readPayload(fs afero.Fs, inline, path string, stdin io.Reader) (json.RawMessage, error) {
	var data []byte
	switch {
	case inline != "" && path != "":
		return nil, fmt.Errorf("use either --data or --file")
	case inline != "":
		data = []byte(inline)
	case path == "-":
		b, err := io.ReadAll(stdin)
		if err != nil {
			return nil, err
		}
		data = b
	case path != "":
		b, err := afero.ReadFile(fs, path)
		if err != nil {
			return nil, err
		}
		data = b
	default:
		return nil, fmt.Errorf("no payload; pass --data or --file")
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("payload is not valid JSON")
	}
	return json.RawMessage(data), nil
}

func mask(secret string) string {
	if len(secret) <= 4 {
		return strings.Repeat("*", len(secret))
	}
	return secret[:2] + strings.Repeat("*", len(secret)-4) + secret[len(secret)-2:]
}

var stdin io.Reader = os.Stdin
