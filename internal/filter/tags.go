// Package filter decides which OSM ways end up in the map.
package filter

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Matcher reports whether a way with the given tags should be kept
type Matcher interface {
	Match(tags map[string]string) bool
}

// MatchFunc adapts a function to Matcher
type MatchFunc func(tags map[string]string) bool

// Match calls f
func (f MatchFunc) Match(tags map[string]string) bool {
	return f(tags)
}

// All keeps a way only if every matcher keeps it
func All(matchers ...Matcher) Matcher {
	return MatchFunc(func(tags map[string]string) bool {
		for _, m := range matchers {
			if !m.Match(tags) {
				return false
			}
		}
		return true
	})
}

// Rules holds tag filtering rules as read from YAML
type Rules struct {
	// Include lists keys and accepted values; an empty value list accepts any value
	Include map[string][]string `yaml:"include,omitempty"`
	// Exclude lists keys and rejected values, applied after Include
	Exclude map[string][]string `yaml:"exclude,omitempty"`
	// RequireAny requires at least one of these keys
	RequireAny []string `yaml:"require_any,omitempty"`
}

// DefaultRules keeps anything tagged highway
func DefaultRules() *Rules {
	return &Rules{RequireAny: []string{"highway"}}
}

// LoadRules reads filtering rules from a YAML file
func LoadRules(path string) (*Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read filter file: %w", err)
	}
	return ParseRules(data)
}

// ParseRules parses YAML filtering rules
func ParseRules(data []byte) (*Rules, error) {
	var r Rules
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to parse filter YAML: %w", err)
	}
	return &r, nil
}

// TagFilter applies Rules to way tags
type TagFilter struct {
	rules *Rules
}

// NewTagFilter creates a filter; nil rules keep every way
func NewTagFilter(rules *Rules) *TagFilter {
	if rules == nil {
		rules = &Rules{}
	}
	return &TagFilter{rules: rules}
}

// Match implements Matcher
func (f *TagFilter) Match(tags map[string]string) bool {
	r := f.rules

	if len(r.RequireAny) > 0 {
		found := false
		for _, key := range r.RequireAny {
			if _, ok := tags[key]; ok {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if len(r.Include) > 0 {
		matched := false
		for key, values := range r.Include {
			if v, ok := tags[key]; ok && valueListed(values, v) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	for key, values := range r.Exclude {
		if v, ok := tags[key]; ok && valueListed(values, v) {
			return false
		}
	}
	return true
}

// Active reports whether any rule is set
func (f *TagFilter) Active() bool {
	r := f.rules
	return len(r.Include) > 0 || len(r.Exclude) > 0 || len(r.RequireAny) > 0
}

// valueListed treats an empty list and "*" as wildcards
func valueListed(values []string, v string) bool {
	if len(values) == 0 {
		return true
	}
	for _, want := range values {
		if want == v || want == "*" {
			return true
		}
	}
	return false
}
