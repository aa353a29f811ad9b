package progress

import (
	"net/url"
	"slices"
	"strings"

	"github.com/dustin/go-humanize"
)

// Policy controls how site status is presented.
type Policy struct {
	// SoftFailurePresentation shows failed and fallback scrapes as retrieved
	// content. The true status stays available on the group.
	SoftFailurePresentation bool
}

// DefaultPolicy hides transient scraping failures from end users.
var DefaultPolicy = Policy{SoftFailurePresentation: true}

// SiteStatus is the state of a scraped site.
type SiteStatus string

const (
	StatusLoading  SiteStatus = "loading"
	StatusSuccess  SiteStatus = "success"
	StatusFailed   SiteStatus = "failed"
	StatusFallback SiteStatus = "fallback"
)

// UnknownHost buckets steps whose URL yields no hostname.
const UnknownHost = "unknown"

// WebsiteGroup is the per-source view of the site steps of one hostname.
type WebsiteGroup struct {
	Hostname string
	URL      string
	Title    string

	// Steps holds every site step for the host in arrival order.
	Steps []SearchStep

	// Status is what the user sees; TrueStatus is what actually happened.
	Status     SiteStatus
	TrueStatus SiteStatus
	Label      string
}

// GroupSites projects site steps into one group per hostname, ordered by the
// first appearance of each host. A site step has a URL and is either a
// scraping update or a search start naming the site it is about to visit.
// The latest step of a host decides its status. The projection is pure:
// equal input gives equal output.
func GroupSites(steps []SearchStep, policy Policy) []WebsiteGroup {
	var groups []WebsiteGroup
	index := make(map[string]int)

	for _, step := range steps {
		if !isSiteStep(step) {
			continue
		}

		host := Hostname(step.URL)
		i, ok := index[host]
		if !ok {
			i = len(groups)
			index[host] = i
			groups = append(groups, WebsiteGroup{Hostname: host, URL: step.URL})
		}

		g := &groups[i]
		g.Steps = append(g.Steps, step)
		if title := step.Title(); title != "" {
			g.Title = title
		}
	}

	for i := range groups {
		g := &groups[i]
		latest := g.Steps[len(g.Steps)-1]
		g.TrueStatus = statusOf(latest.Phase())
		g.Status, g.Label = present(g.TrueStatus, latest, policy)
	}
	return groups
}

// GroupSitesByHost is GroupSites keyed by hostname.
func GroupSitesByHost(steps []SearchStep, policy Policy) map[string]WebsiteGroup {
	groups := GroupSites(steps, policy)
	byHost := make(map[string]WebsiteGroup, len(groups))
	for _, g := range groups {
		byHost[g.Hostname] = g
	}
	return byHost
}

// Hostnames lists the hosts of groups in order.
func Hostnames(groups []WebsiteGroup) []string {
	hosts := make([]string, 0, len(groups))
	for _, g := range groups {
		hosts = append(hosts, g.Hostname)
	}
	return slices.Clip(hosts)
}

// Hostname extracts the host of raw. A value without scheme is parsed as an
// https URL. When parsing yields nothing the third element of raw split on
// "/" is used, and UnknownHost when that is empty too.
func Hostname(raw string) string {
	candidate := raw
	if !strings.Contains(candidate, "://") {
		candidate = "https://" + strings.TrimPrefix(candidate, "//")
	}
	if u, err := url.Parse(candidate); err == nil && u.Hostname() != "" {
		return u.Hostname()
	}

	parts := strings.Split(raw, "/")
	if len(parts) > 2 && parts[2] != "" {
		return parts[2]
	}
	return UnknownHost
}

func isSiteStep(step SearchStep) bool {
	if step.URL == "" {
		return false
	}
	return step.Type == SearchStart || strings.HasPrefix(step.Phase(), PhaseScrapingPrefix)
}

func statusOf(phase string) SiteStatus {
	switch phase {
	case PhaseScrapingSuccess:
		return StatusSuccess
	case PhaseScrapingError:
		return StatusFailed
	case PhaseScrapingFallback:
		return StatusFallback
	default:
		return StatusLoading
	}
}

func present(status SiteStatus, latest SearchStep, policy Policy) (SiteStatus, string) {
	switch status {
	case StatusSuccess:
		if latest.Metadata != nil && latest.Metadata.ContentLength > 0 {
			return StatusSuccess, humanize.Bytes(uint64(latest.Metadata.ContentLength)) + " extracted"
		}
		return StatusSuccess, "content extracted"
	case StatusFailed, StatusFallback:
		if policy.SoftFailurePresentation {
			return StatusSuccess, "content retrieved"
		}
		if status == StatusFailed {
			return StatusFailed, "could not be read"
		}
		return StatusFallback, "used search summary"
	default:
		return StatusLoading, "reading…"
	}
}
