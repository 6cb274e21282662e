package fetch

import (
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Allowlist matches hostnames against glob patterns such as
// "api.example.com" or "*.example.com". An empty list permits every host.
type Allowlist struct {
	patterns []string
}

func NewAllowlist(patterns []string) (*Allowlist, error) {
	a := &Allowlist{}
	for _, p := range patterns {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid host pattern %q", p)
		}
		a.patterns = append(a.patterns, p)
	}
	return a, nil
}

// Permits reports whether host may be contacted.
func (a *Allowlist) Permits(host string) bool {
	if a == nil || len(a.patterns) == 0 {
		return true
	}
	host = strings.ToLower(host)
	for _, p := range a.patterns {
		if ok, _ := doublestar.Match(p, host); ok {
			return true
		}
	}
	return false
}
