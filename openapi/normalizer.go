package openapi

import (
	"fmt"
	"sort"
	"strings"
)

// DefaultServerPath is appended to the base URL when a document declares no
// servers.
const DefaultServerPath = "/api/v3"

// Target identifies one operation whose security requirements are rewritten.
type Target struct {
	Path   string `yaml:"path" json:"path"`
	Method string `yaml:"method" json:"method"`
}

// String renders the target as "METHOD /path".
func (t Target) String() string {
	return strings.ToUpper(t.Method) + " " + t.Path
}

// ParseTarget parses "METHOD /path", e.g. "GET /pet/{petId}".
func ParseTarget(s string) (Target, error) {
	fields := strings.Fields(s)
	if len(fields) != 2 {
		return Target{}, fmt.Errorf("invalid target %q: want \"METHOD /path\"", s)
	}
	if !strings.HasPrefix(fields[1], "/") {
		return Target{}, fmt.Errorf("invalid target %q: path must start with /", s)
	}
	return Target{Path: fields[1], Method: strings.ToLower(fields[0])}, nil
}

// ParseTargets parses a comma-separated list of targets. Empty items are
// ignored.
func ParseTargets(s string) ([]Target, error) {
	var targets []Target
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		t, err := ParseTarget(item)
		if err != nil {
			return nil, err
		}
		targets = append(targets, t)
	}
	return targets, nil
}

// Normalizer rewrites an OpenAPI document so that it can be turned into tools:
// relative server URLs become absolute and the security requirements of the
// targeted operations are reduced to the scheme a caller can satisfy.
type Normalizer struct {
	// BaseURL is prefixed to path-relative server URLs.
	BaseURL string
	// DefaultServerPath is used when the document has no servers. Empty means
	// DefaultServerPath.
	DefaultServerPath string
	// Targets are the operations whose security is filtered.
	Targets []Target
	// AllowedScheme is the security scheme name kept in requirement lists.
	AllowedScheme string
}

// Report describes what Normalize changed.
type Report struct {
	// RewrittenServers maps original relative URLs to their absolute form.
	RewrittenServers map[string]string
	// DefaultedServer is set when the document had no servers.
	DefaultedServer string
	// Filtered lists targets whose security list was shortened.
	Filtered []Target
	// Removed lists targets whose security field was deleted.
	Removed []Target
	// Skipped lists targets not present in the document.
	Skipped []Target
	// CaseMismatches lists scheme names that equal AllowedScheme only when
	// compared case-insensitively.
	CaseMismatches []string
}

// Changed reports whether the document was modified.
func (r Report) Changed() bool {
	return len(r.RewrittenServers) > 0 || r.DefaultedServer != "" || len(r.Filtered) > 0 || len(r.Removed) > 0
}

// Normalize returns a normalized copy of doc. doc itself is not modified.
func (n *Normalizer) Normalize(doc Document) (Document, Report) {
	out := doc.Clone()
	if out == nil {
		out = Document{}
	}
	var report Report
	n.normalizeServers(out, &report)
	n.normalizeSecurity(out, &report)
	return out, report
}

// NormalizeServers makes path-relative server URLs absolute in place.
func (n *Normalizer) NormalizeServers(doc Document) Report {
	var report Report
	n.normalizeServers(doc, &report)
	return report
}

// NormalizeSecurity filters the security requirements of the targeted
// operations in place.
func (n *Normalizer) NormalizeSecurity(doc Document) Report {
	var report Report
	n.normalizeSecurity(doc, &report)
	return report
}

func (n *Normalizer) normalizeServers(doc Document, report *Report) {
	base := strings.TrimRight(n.BaseURL, "/")

	raw, present := doc["servers"]
	if !present || raw == nil {
		report.DefaultedServer = n.defaultServer(base)
		doc["servers"] = []any{map[string]any{"url": report.DefaultedServer}}
		return
	}

	servers, ok := raw.([]any)
	if !ok {
		return
	}
	if len(servers) == 0 {
		report.DefaultedServer = n.defaultServer(base)
		doc["servers"] = []any{map[string]any{"url": report.DefaultedServer}}
		return
	}

	for _, entry := range servers {
		server, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		u, ok := server["url"].(string)
		if !ok || !strings.HasPrefix(u, "/") {
			continue
		}
		abs := base + u
		server["url"] = abs
		if report.RewrittenServers == nil {
			report.RewrittenServers = make(map[string]string)
		}
		report.RewrittenServers[u] = abs
	}
}

func (n *Normalizer) defaultServer(base string) string {
	suffix := n.DefaultServerPath
	if suffix == "" {
		suffix = DefaultServerPath
	}
	return base + suffix
}

func (n *Normalizer) normalizeSecurity(doc Document, report *Report) {
	mismatches := make(map[string]struct{})

	for _, target := range n.Targets {
		method := strings.ToLower(target.Method)
		op, ok := doc.Operation(target.Path, method)
		if !ok {
			report.Skipped = append(report.Skipped, target)
			continue
		}

		raw, present := op["security"]
		if !present {
			continue
		}
		requirements, ok := raw.([]any)
		if !ok {
			continue
		}

		filtered := make([]any, 0, len(requirements))
		for _, entry := range requirements {
			requirement, ok := entry.(map[string]any)
			if !ok {
				continue
			}
			if _, ok := requirement[n.AllowedScheme]; ok {
				filtered = append(filtered, requirement)
				continue
			}
			for name := range requirement {
				if strings.EqualFold(name, n.AllowedScheme) {
					mismatches[name] = struct{}{}
				}
			}
		}

		switch {
		case len(filtered) == 0 && len(requirements) > 0:
			delete(op, "security")
			report.Removed = append(report.Removed, target)
		case len(filtered) != len(requirements):
			op["security"] = filtered
			report.Filtered = append(report.Filtered, target)
		}
	}

	for name := range mismatches {
		report.CaseMismatches = append(report.CaseMismatches, name)
	}
	sort.Strings(report.CaseMismatches)
}
