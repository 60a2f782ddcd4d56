// Package integrity computes the deterministic content hashes used
// as identity throughout the system: per-space integrity over a
// registry subtree, and per-target env-hash over a load order.
package integrity

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"

	"agentspaces/pkg/gitaccess"
)

// DevIntegrity is the reserved integrity marker for dev/project
// spaces, which bypass content addressing entirely.
const DevIntegrity = "sha256:dev"

var excludedDirs = map[string]bool{
	".git":         true,
	".asp":         true,
	"node_modules": true,
	"dist":         true,
}

// SpaceIntegrity computes sha256:<hex> over the sorted tree entries
// of a registry subtree, seeded with "v1\0" and independent of clone
// order or mtimes.
func SpaceIntegrity(entries []gitaccess.TreeEntry) string {
	filtered := make([]gitaccess.TreeEntry, 0, len(entries))
	for _, e := range entries {
		if isExcluded(e.Path) {
			continue
		}
		filtered = append(filtered, e)
	}
	sort.Slice(filtered, func(i, j int) bool { return filtered[i].Path < filtered[j].Path })

	h := sha256.New()
	h.Write([]byte("v1\x00"))
	for _, e := range filtered {
		h.Write([]byte(e.Path))
		h.Write([]byte{0})
		h.Write([]byte(e.Kind))
		h.Write([]byte{0})
		h.Write([]byte(e.OID))
		h.Write([]byte{0})
		h.Write([]byte(e.Mode))
		h.Write([]byte{'\n'})
	}

	return "sha256:" + hex.EncodeToString(h.Sum(nil))
}

func isExcluded(path string) bool {
	for _, part := range splitPath(path) {
		if excludedDirs[part] {
			return true
		}
	}
	return false
}

func splitPath(path string) []string {
	var parts []string
	cur := ""
	for _, r := range path {
		if r == '/' {
			if cur != "" {
				parts = append(parts, cur)
			}
			cur = ""
			continue
		}
		cur += string(r)
	}
	if cur != "" {
		parts = append(parts, cur)
	}
	return parts
}

// LoadOrderEntry is one (key, integrity, pluginName) triple
// contributing to an env-hash.
type LoadOrderEntry struct {
	SpaceKey   string
	Integrity  string
	PluginName string
}

// EnvHash computes the stable per-target identity hash over a load
// order: sha256("env-v1\0" + for each entry: key\0integrity\0plugin\n).
func EnvHash(loadOrder []LoadOrderEntry) string {
	h := sha256.New()
	h.Write([]byte("env-v1\x00"))
	for _, e := range loadOrder {
		h.Write([]byte(e.SpaceKey))
		h.Write([]byte{0})
		h.Write([]byte(e.Integrity))
		h.Write([]byte{0})
		h.Write([]byte(e.PluginName))
		h.Write([]byte{'\n'})
	}
	return "sha256:" + hex.EncodeToString(h.Sum(nil))
}

// HarnessEnvHash computes the harness-variant env-hash, prefixed with
// the target harness id.
func HarnessEnvHash(harnessID string, loadOrder []LoadOrderEntry) string {
	h := sha256.New()
	h.Write([]byte("env-harness-v1\x00"))
	h.Write([]byte(harnessID))
	h.Write([]byte{0})
	for _, e := range loadOrder {
		h.Write([]byte(e.SpaceKey))
		h.Write([]byte{0})
		h.Write([]byte(e.Integrity))
		h.Write([]byte{0})
		h.Write([]byte(e.PluginName))
		h.Write([]byte{'\n'})
	}
	return "sha256:" + hex.EncodeToString(h.Sum(nil))
}
