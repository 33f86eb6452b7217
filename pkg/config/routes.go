package config

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/ini.v1"
)

// RouteDef is a single entry of the route table: a URL template with named
// placeholders, the HTTP method, and an optional per-route upload timeout.
//
// Timeout is one of:
//   - nil (key absent or JSON null): RouteUploadFile falls back to 600 s;
//     a null value is not told apart from an absent one and does not
//     disable the upload timeout.
//   - Flat set: a flat timeout in seconds.
//   - Table set: an ordered [size_threshold_bytes, timeout_seconds] table.
type RouteDef struct {
	URL     string           `json:"url"`
	Method  string           `json:"method"`
	Timeout *RouteTimeoutSpec `json:"timeout,omitempty"`
}

// RouteTimeoutSpec captures the three shapes a route's timeout can take in
// the INI-encoded JSON value: absent, a flat number of seconds, or an
// ordered list of [size_threshold_bytes, timeout_seconds] pairs.
type RouteTimeoutSpec struct {
	Flat  *float64
	Table [][2]float64
}

// UnmarshalJSON accepts null, a bare number, or an array of 2-element
// arrays.
func (t *RouteTimeoutSpec) UnmarshalJSON(b []byte) error {
	trimmed := strings.TrimSpace(string(b))
	if trimmed == "null" {
		return nil
	}
	if trimmed != "" && (trimmed[0] == '[') {
		var table [][2]float64
		if err := json.Unmarshal(b, &table); err != nil {
			return fmt.Errorf("route timeout table invalide: %w", err)
		}
		t.Table = table
		return nil
	}
	var flat float64
	if err := json.Unmarshal(b, &flat); err != nil {
		return fmt.Errorf("route timeout invalide: %w", err)
	}
	t.Flat = &flat
	return nil
}

// RouteTable maps route name to its definition.
type RouteTable map[string]RouteDef

var placeholderRe = regexp.MustCompile(`\{([a-zA-Z0-9_]+)\}`)

// Resolve substitutes every {placeholder} in the route's URL template using
// params, falling back to defaultDatastore for the {datastore} placeholder
// when params does not provide one. It returns an error naming the first
// placeholder it cannot resolve.
func (r RouteDef) Resolve(params map[string]string, defaultDatastore string) (string, error) {
	var missing string
	resolved := placeholderRe.ReplaceAllStringFunc(r.URL, func(m string) string {
		name := placeholderRe.FindStringSubmatch(m)[1]
		if v, ok := params[name]; ok {
			return v
		}
		if name == "datastore" && defaultDatastore != "" {
			return defaultDatastore
		}
		missing = name
		return m
	})
	if missing != "" {
		return "", fmt.Errorf("paramètre de route manquant: %q", missing)
	}
	return resolved, nil
}

// parseRouteTable reads the "routing" section: each key is a route name,
// each value a JSON object {"url":..., "method":..., "timeout":...}.
func parseRouteTable(file *ini.File) (RouteTable, error) {
	table := make(RouteTable)
	if !file.HasSection("routing") {
		return table, nil
	}
	section := file.Section("routing")
	for _, key := range section.Keys() {
		var def RouteDef
		if err := json.Unmarshal([]byte(key.Value()), &def); err != nil {
			return nil, fmt.Errorf("config: route %q invalide: %w", key.Name(), err)
		}
		table[key.Name()] = def
	}
	return table, nil
}
