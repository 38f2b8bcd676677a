package store

import (
	"bytes"
	"slices"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Top-level sections of the data file.
const (
	sectionDefaults  = "defaults"
	sectionTempBan   = "fakeban"
	sectionAllowlist = "whitelist"
	sectionBans      = "bans"
	sectionTempBans  = "fakebans"
)

var sectionOrder = []string{sectionDefaults, sectionTempBan, sectionAllowlist, sectionBans, sectionTempBans}

func isSection(key string) bool {
	for _, s := range sectionOrder {
		if s == key {
			return true
		}
	}
	return false
}

func isRecordSection(key string) bool {
	return key == sectionBans || key == sectionTempBans
}

// documentRoot returns the top-level mapping of a parsed document, or nil if
// the document is empty or not a mapping.
func documentRoot(doc *yaml.Node) *yaml.Node {
	if doc == nil || doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil
	}
	return root
}

func newDocument(root *yaml.Node) *yaml.Node {
	return &yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{root}}
}

func newMapping() *yaml.Node {
	return &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
}

func strNode(v string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v}
}

func intNode(v int64) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: strconv.FormatInt(v, 10)}
}

func boolNode(v bool) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: strconv.FormatBool(v)}
}

func nullNode() *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}
}

// lookup returns the value stored under key in mapping m.
func lookup(m *yaml.Node, key string) *yaml.Node {
	if m == nil || m.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i+1]
		}
	}
	return nil
}

// findKey returns the stored key in m equal to name ignoring case. Case
// variants resolve as in matchKey.
func findKey(m *yaml.Node, name string) (string, bool) {
	if m == nil || m.Kind != yaml.MappingNode {
		return "", false
	}
	var keys []string
	records := make(map[string]*yaml.Node)
	for i := 0; i+1 < len(m.Content); i += 2 {
		if key := m.Content[i].Value; strings.EqualFold(key, name) {
			keys = append(keys, key)
			records[key] = m.Content[i+1]
		}
	}
	return matchKey(keys, name, func(key string) bool {
		active, ok := scalarBool(lookup(records[key], fieldState))
		return ok && active
	})
}

// matchKey picks one of keys, all equal to name ignoring case: the exact
// spelling first, then the lowest active key, then the lowest key.
func matchKey(keys []string, name string, active func(key string) bool) (string, bool) {
	if len(keys) == 0 {
		return "", false
	}
	if slices.Contains(keys, name) {
		return name, true
	}
	keys = slices.Clone(keys)
	slices.Sort(keys)
	for _, key := range keys {
		if active(key) {
			return key, true
		}
	}
	return keys[0], true
}

// set stores value under key in mapping m, replacing an existing entry.
func set(m *yaml.Node, key string, value *yaml.Node) {
	m.Style &^= yaml.FlowStyle
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			m.Content[i+1] = value
			return
		}
	}
	m.Content = append(m.Content, strNode(key), value)
}

// ensureMapping returns the mapping stored under key, creating it or
// replacing a non-mapping value.
func ensureMapping(m *yaml.Node, key string) *yaml.Node {
	child := lookup(m, key)
	if child != nil && child.Kind == yaml.MappingNode {
		return child
	}
	child = newMapping()
	set(m, key, child)
	return child
}

func render(root *yaml.Node) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(newDocument(root)); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
