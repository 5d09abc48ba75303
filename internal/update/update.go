// Package update compares the running CLI with the latest published
// release.
package update

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"strings"

	"github.com/hashicorp/go-version"
)

// ReleasesURL is the endpoint describing the latest release.
const ReleasesURL = "https://api.github.com/repos/onyx-dev/onyx-database-go/releases/latest"

// Result is the outcome of a check.
type Result struct {
	Current string
	Latest  string
	// Newer is true when Latest is a later version than Current.
	Newer bool
}

// Compare reports whether latest is newer than current. A leading "v" is
// accepted on both.
func Compare(current, latest string) (bool, error) {
	cur, err := version.NewVersion(strings.TrimSpace(current))
	if err != nil {
		return false, fmt.Errorf("invalid version format: %w", err)
	}
	lat, err := version.NewVersion(strings.TrimSpace(latest))
	if err != nil {
		return false, fmt.Errorf("invalid latest version format: %w", err)
	}
	return cur.LessThan(lat), nil
}

// Check fetches the latest release from url and compares it with current.
func Check(ctx context.Context, client *http.Client, url, current string) (*Result, error) {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	res, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch latest release: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch latest release: %s", res.Status)
	}

	var release struct {
		TagName string `json:"tag_name"`
	}
	if err := json.NewDecoder(res.Body).Decode(&release); err != nil {
		return nil, fmt.Errorf("decode latest release: %w", err)
	}
	newer, err := Compare(current, release.TagName)
	if err != nil {
		return nil, err
	}
	return &Result{Current: current, Latest: strings.TrimPrefix(release.TagName, "v"), Newer: newer}, nil
}

// DownloadURL returns the release asset for the current platform.
func DownloadURL(v string) string {
	v = strings.TrimPrefix(v, "v")
	return fmt.Sprintf("https://github.com/onyx-dev/onyx-database-go/releases/download/v%s/onyx-%s-%s", v, runtime.GOOS, runtime.GOARCH)
}
