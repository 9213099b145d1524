package phpengine

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/goccy/go-json"
)

// DefaultVersion is the PHP version used when nothing else decides.
const DefaultVersion = "8.3"

var supportedVersions = []string{"7.4", "8.0", "8.1", "8.2", "8.3", "8.4"}

// ValidVersion reports whether v is a supported PHP version.
func ValidVersion(v string) bool {
	for _, s := range supportedVersions {
		if s == v {
			return true
		}
	}
	return false
}

// SelectVersion determines which PHP version to use.
// Priority: explicit > composer.json > default (8.3)
func SelectVersion(projectRoot, explicit string) string {
	// 1. Explicit version takes precedence
	if explicit != "" && explicit != "auto" {
		return explicit
	}

	// 2. Check composer.json
	if projectRoot != "" {
		composerPath := filepath.Join(projectRoot, "composer.json")
		if data, err := os.ReadFile(composerPath); err == nil {
			if version := parseComposerPHPVersion(data); version != "" {
				return version
			}
		}
	}

	// 3. Default to latest stable
	return DefaultVersion
}

// parseComposerPHPVersion extracts PHP version from composer.json
func parseComposerPHPVersion(data []byte) string {
	var composer struct {
		Require map[string]string `json:"require"`
	}

	if err := json.Unmarshal(data, &composer); err != nil {
		return ""
	}

	phpConstraint, ok := composer.Require["php"]
	if !ok {
		return ""
	}

	return resolveVersionConstraint(phpConstraint)
}

var constraintPatterns = []struct {
	regex     *regexp.Regexp
	sameMajor bool
	exact     bool
}{
	{regexp.MustCompile(`^>=?\s*(\d+\.\d+)`), false, false},
	{regexp.MustCompile(`^\^(\d+\.\d+)`), true, false},
	{regexp.MustCompile(`^~(\d+\.\d+)`), true, false},
	{regexp.MustCompile(`^(\d+\.\d+)(\.\d+)?$`), true, true},
}

// resolveVersionConstraint converts composer constraint to specific version.
// Only the first alternative of an "||" constraint is considered.
func resolveVersionConstraint(constraint string) string {
	constraint = strings.TrimSpace(strings.Split(constraint, "||")[0])

	for _, p := range constraintPatterns {
		if matches := p.regex.FindStringSubmatch(constraint); len(matches) > 1 {
			if p.exact && ValidVersion(matches[1]) {
				return matches[1]
			}
			return highestCompatible(matches[1], p.sameMajor)
		}
	}
	return ""
}

// highestCompatible picks the default version if it satisfies min,
// otherwise the newest supported version that does.
func highestCompatible(min string, sameMajor bool) string {
	ok := func(v string) bool {
		if compareVersions(v, min) < 0 {
			return false
		}
		return !sameMajor || major(v) == major(min)
	}

	if ok(DefaultVersion) {
		return DefaultVersion
	}
	for i := len(supportedVersions) - 1; i >= 0; i-- {
		if ok(supportedVersions[i]) {
			return supportedVersions[i]
		}
	}
	return ""
}

func major(v string) int {
	return atoi(strings.SplitN(v, ".", 2)[0])
}

// compareVersions compares two version strings
func compareVersions(a, b string) int {
	partsA := strings.Split(a, ".")
	partsB := strings.Split(b, ".")

	for i := 0; i < 2; i++ {
		var va, vb int
		if i < len(partsA) {
			va = atoi(partsA[i])
		}
		if i < len(partsB) {
			vb = atoi(partsB[i])
		}
		if va < vb {
			return -1
		}
		if va > vb {
			return 1
		}
	}
	return 0
}

func atoi(s string) int {
	var n int
	for _, c := range s {
		if c >= '0' && c <= '9' {
			n = n*10 + int(c-'0')
		}
	}
	return n
}
