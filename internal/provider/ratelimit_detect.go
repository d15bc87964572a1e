package provider

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DefaultRetryAfter is used when a rate-limited message is detected but no
// wait duration could be parsed out of it.
const DefaultRetryAfter = 15 * time.Second

// detectionPattern pairs a case-insensitive substring/regex used to flag a
// provider error message as a rate-limit condition with an optional
// extractor for the wait duration in seconds. Kept as a configurable
// table, not hardcoded logic, since substring-based detection is brittle
// and needs to stay swappable as the provider's error wording drifts.
type detectionPattern struct {
	re        *regexp.Regexp
	extractor func(matches []string) (seconds int, ok bool)
}

// RateLimitPatterns is the package-level, overridable table of detection
// rules. Tests or alternate deployments may replace this slice wholesale.
var RateLimitPatterns = []detectionPattern{
	{
		re: regexp.MustCompile(`(?i)(\d+)\s*gi[aâ]y`), // Vietnamese: "15 giây"
		extractor: func(m []string) (int, bool) {
			if len(m) < 2 {
				return 0, false
			}
			n, err := strconv.Atoi(m[1])
			return n, err == nil
		},
	},
	{
		re: regexp.MustCompile(`(?i)retry after (\d+)\s*seconds?`),
		extractor: func(m []string) (int, bool) {
			if len(m) < 2 {
				return 0, false
			}
			n, err := strconv.Atoi(m[1])
			return n, err == nil
		},
	},
	{re: regexp.MustCompile(`(?i)qu[aá]\s*nhi[eề]u\s*request`)},
	{re: regexp.MustCompile(`(?i)th[uử]\s*l[aạ]i\s*sau`)},
	{re: regexp.MustCompile(`(?i)too many requests`)},
	{re: regexp.MustCompile(`(?i)rate limit`)},
}

// DetectRateLimit inspects a provider error message and, if it matches any
// configured pattern, returns the parsed (or default) retry-after wait.
func DetectRateLimit(message string) (retryAfter time.Duration, detected bool) {
	if strings.TrimSpace(message) == "" {
		return 0, false
	}
	for _, p := range RateLimitPatterns {
		m := p.re.FindStringSubmatch(message)
		if m == nil {
			continue
		}
		if p.extractor != nil {
			if seconds, ok := p.extractor(m); ok {
				return time.Duration(seconds) * time.Second, true
			}
		}
		return DefaultRetryAfter, true
	}
	return 0, false
}
