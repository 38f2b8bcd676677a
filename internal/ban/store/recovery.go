package store

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"banguard/pkg/platform/fsutil"
)

//go:embed default.yaml
var defaultSkeleton []byte

// defaultRoot parses a fresh copy of the embedded skeleton.
func defaultRoot() *yaml.Node {
	var doc yaml.Node
	if err := yaml.Unmarshal(defaultSkeleton, &doc); err != nil {
		panic(fmt.Sprintf("store: embedded skeleton is invalid: %v", err))
	}
	return documentRoot(&doc)
}

// isFlattened reports whether a top-level key holds a dotted path instead of
// a nested section.
func isFlattened(key string) bool {
	return strings.Contains(key, ".")
}

// flattenedKeys counts top-level keys written as dotted paths.
func flattenedKeys(root *yaml.Node) int {
	n := 0
	for i := 0; i+1 < len(root.Content); i += 2 {
		if isFlattened(root.Content[i].Value) {
			n++
		}
	}
	return n
}

// reconstruct rebuilds a nested tree from one whose keys were flattened into
// dotted paths. Intact top-level sections are kept, missing sections come
// from the default skeleton, and every dotted key is regrouped under its
// section and player.
func reconstruct(root *yaml.Node) *yaml.Node {
	out := defaultRoot()
	for i := 0; i+1 < len(root.Content); i += 2 {
		key, value := root.Content[i].Value, root.Content[i+1]
		if isSection(key) && value.Kind == yaml.MappingNode {
			set(out, key, value)
		}
	}

	for i := 0; i+1 < len(root.Content); i += 2 {
		key, value := root.Content[i].Value, root.Content[i+1]
		if !isFlattened(key) {
			continue
		}
		placeFlattened(out, strings.Split(key, "."), value)
	}
	return out
}

func placeFlattened(out *yaml.Node, parts []string, value *yaml.Node) {
	switch {
	case isRecordSection(parts[0]) && len(parts) == 2:
		set(ensureMapping(out, parts[0]), parts[1], value)
	case isRecordSection(parts[0]):
		player := ensureMapping(ensureMapping(out, parts[0]), parts[1])
		set(player, strings.Join(parts[2:], "."), value)
	case isSection(parts[0]):
		set(ensureMapping(out, parts[0]), strings.Join(parts[1:], "."), value)
	default:
		// Bare "<player>.<field>" keys belong to the permanent ban table.
		player := ensureMapping(ensureMapping(out, sectionBans), parts[0])
		set(player, strings.Join(parts[1:], "."), value)
	}
}

// backup copies the data file next to itself as <path>.backup.<unix-millis>.
func backup(path string, now time.Time) (string, error) {
	base := path + ".backup." + strconv.FormatInt(now.UnixMilli(), 10)
	target := base
	for attempt := 1; ; attempt++ {
		err := fsutil.CopyFile(path, target)
		if err == nil {
			return target, nil
		}
		if !errors.Is(err, fs.ErrExist) || attempt > 100 {
			return "", err
		}
		target = base + "-" + strconv.Itoa(attempt)
	}
}
