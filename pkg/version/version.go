package version

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"

	"github.com/TermuxHackz/Enhanced-IPSW-Firmware-Analysis-Tool/pkg/models"
)

const featureFlags = "Pebble/TreeCache"

// githubRepo is the release feed polled by the update check. Owned by the
// CLI layer; the comparison engine never touches this package.
const githubRepo = "TermuxHackz/Enhanced-IPSW-Firmware-Analysis-Tool"

// EngineVersion automatically detects the version from the Git tag.
func EngineVersion() string {
	version := "(devel)" // Fallback for local testing (go run .)

	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "" {
			version = info.Main.Version
		}
	}

	return fmt.Sprintf("%s (%s)", version, featureFlags)
}

// Release is one entry from the GitHub releases API, trimmed to the fields
// the update check needs.
type Release struct {
	TagName string `json:"tag_name"`
	HTMLURL string `json:"html_url"`
}

// releaseAPIBase is a test hook; production code never changes it.
var releaseAPIBase = "https://api.github.com"

// CheckLatest polls GitHub for the newest published release. Network
// failures return an error; comparing against the running version is the
// caller's concern since dev builds have no meaningful tag.
func CheckLatest(ctx context.Context) (*Release, error) {
	url := fmt.Sprintf("%s/repos/%s/releases/latest", releaseAPIBase, githubRepo)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build release request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	client := &http.Client{Timeout: models.UpdateCheckTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("release check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("release check failed with status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, models.MaxAPIResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read release response: %w", err)
	}

	var rel Release
	if err := json.Unmarshal(body, &rel); err != nil {
		return nil, fmt.Errorf("failed to decode release response: %w", err)
	}
	if rel.TagName == "" {
		return nil, fmt.Errorf("release response carried no tag")
	}
	return &rel, nil
}

// IsNewer reports whether the release tag is ahead of the given version
// string. Dotted segments compare numerically so v10 ranks above v9; dev
// builds always report newer available. Trailing decorations like the
// feature-flag suffix EngineVersion appends are ignored.
func (r *Release) IsNewer(current string) bool {
	tag := strings.TrimPrefix(r.TagName, "v")
	cur, _, _ := strings.Cut(strings.TrimPrefix(current, "v"), " ")
	if cur == "" || strings.HasPrefix(cur, "(devel") {
		return true
	}
	return compareVersions(tag, cur) > 0
}

// compareVersions orders two dotted version strings. Missing segments count
// as zero; segments that are not plain integers fall back to string order so
// pre-release suffixes still produce a stable answer.
func compareVersions(a, b string) int {
	as, bs := strings.Split(a, "."), strings.Split(b, ".")
	for i := 0; i < len(as) || i < len(bs); i++ {
		sa, sb := "0", "0"
		if i < len(as) && as[i] != "" {
			sa = as[i]
		}
		if i < len(bs) && bs[i] != "" {
			sb = bs[i]
		}
		na, errA := strconv.Atoi(sa)
		nb, errB := strconv.Atoi(sb)
		if errA == nil && errB == nil {
			if na != nb {
				if na > nb {
					return 1
				}
				return -1
			}
			continue
		}
		if c := strings.Compare(sa, sb); c != 0 {
			return c
		}
	}
	return 0
}
