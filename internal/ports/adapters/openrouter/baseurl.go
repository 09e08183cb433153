package openrouter

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/forPelevin/vertclip/internal/failure"
)

const defaultBaseURL = "https://openrouter.ai"

// hostSet is a lower-cased set of bare host names.
type hostSet map[string]struct{}

func (s hostSet) has(host string) bool {
	_, ok := s[strings.ToLower(host)]
	return ok
}

var defaultAllowedHosts = hostSet{
	"openrouter.ai":     {},
	"api.openrouter.ai": {},
}

func normalizeBaseURL(baseURL string) string {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return strings.TrimRight(baseURL, "/")
}

// ValidateBaseURL accepts only https URLs on an allowed host, so the API key
// is never sent elsewhere. An empty allow list means the public OpenRouter
// hosts.
func ValidateBaseURL(baseURL string, allowedHosts []string) error {
	raw := normalizeBaseURL(baseURL)
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: invalid OPENROUTER_BASE_URL: %v", failure.ErrInput, err)
	}

	var reason string
	switch {
	case !u.IsAbs() || u.Host == "":
		reason = "absolute URL with host is required"
	case u.User != nil:
		reason = "userinfo is not allowed"
	case u.RawQuery != "" || u.Fragment != "":
		reason = "query and fragment are not allowed"
	case u.Hostname() == "":
		reason = "host is required"
	case !strings.EqualFold(u.Scheme, "https"):
		reason = "https is required"
	case !parseAllowedHosts(allowedHosts).has(u.Hostname()):
		reason = fmt.Sprintf("host %q is not in OPENROUTER_ALLOWED_HOSTS", strings.ToLower(u.Hostname()))
	default:
		return nil
	}
	// Redacted keeps a password out of logs and terminal output.
	return fmt.Errorf("%w: invalid OPENROUTER_BASE_URL %q: %s", failure.ErrInput, u.Redacted(), reason)
}

// parseAllowedHosts accepts bare hosts, host:port pairs and URLs. Entries that
// reduce to nothing are ignored.
func parseAllowedHosts(allowedHosts []string) hostSet {
	out := make(hostSet, len(allowedHosts))
	for _, h := range allowedHosts {
		v := strings.ToLower(strings.TrimSpace(h))
		for _, prefix := range []string{"http://", "https://"} {
			v = strings.TrimPrefix(v, prefix)
		}
		v, _, _ = strings.Cut(strings.Trim(v, "/"), "/")
		v, _, _ = strings.Cut(v, ":")
		if v != "" {
			out[v] = struct{}{}
		}
	}
	if len(out) == 0 {
		return defaultAllowedHosts
	}
	return out
}
