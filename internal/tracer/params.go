package tracer

import (
	"net/url"
	"sort"
	"time"
)

// Params holds the affiliate-network metadata the tracer matches against.
// Injected at construction so rate/param updates never require a redeploy.
type Params struct {
	// Networks maps a network label to the query-string keys that
	// attribute a sale to a referrer.
	Networks map[string][]string
	// RedirectorHosts are known link-shortener/redirector domains.
	// A chain passing through one drops confidence to medium.
	RedirectorHosts []string
	// CookieWindows maps a network label to its attribution window.
	CookieWindows map[string]time.Duration
}

// DefaultParams returns the built-in affiliate network metadata.
func DefaultParams() Params {
	return Params{
		Networks: map[string][]string{
			"amazon":     {"tag"},
			"shareasale": {"afftrack", "sscid"},
			"cj":         {"cjevent", "pid"},
			"rakuten":    {"ranmid", "ransiteid"},
			"impact":     {"irclickid"},
			"generic":    {"ref", "aff", "aff_id", "affid", "affiliate_id", "u1"},
		},
		RedirectorHosts: []string{
			"bit.ly",
			"geni.us",
			"go.skimresources.com",
			"linktr.ee",
			"prf.hn",
			"shareasale.com",
			"t.co",
			"tinyurl.com",
		},
		CookieWindows: map[string]time.Duration{
			"amazon":     24 * time.Hour,
			"shareasale": 30 * 24 * time.Hour,
			"cj":         30 * 24 * time.Hour,
			"rakuten":    7 * 24 * time.Hour,
			"impact":     30 * 24 * time.Hour,
		},
	}
}

// DetectParams returns the affiliate parameter names present in the URL's
// query string, in stable network order.
func (p Params) DetectParams(u *url.URL) []string {
	query := u.Query()
	if len(query) == 0 {
		return nil
	}

	var found []string
	for _, network := range p.networkOrder() {
		for _, key := range p.Networks[network] {
			if query.Get(key) != "" {
				found = append(found, key)
			}
		}
	}
	return found
}

// NetworkFor returns the network label owning the first matched parameter,
// or empty when none match.
func (p Params) NetworkFor(paramNames []string) string {
	for _, network := range p.networkOrder() {
		for _, key := range p.Networks[network] {
			for _, name := range paramNames {
				if name == key {
					return network
				}
			}
		}
	}
	return ""
}

// IsRedirector reports whether the host is a known redirector domain.
func (p Params) IsRedirector(host string) bool {
	for _, h := range p.RedirectorHosts {
		if host == h || host == "www."+h {
			return true
		}
	}
	return false
}

// networkOrder returns network labels with specific networks before the
// generic fallback, so NetworkFor attributes tags to the right program.
func (p Params) networkOrder() []string {
	order := make([]string, 0, len(p.Networks))
	for name := range p.Networks {
		if name != "generic" {
			order = append(order, name)
		}
	}
	sort.Strings(order)
	if _, ok := p.Networks["generic"]; ok {
		order = append(order, "generic")
	}
	return order
}
