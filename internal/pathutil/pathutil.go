// Package pathutil has small path helpers shared by the inventory and
// SSH layers.
package pathutil

import (
	"os"
	"path/filepath"
	"strings"
)

// ExpandHome resolves a bare ~ or a leading ~/ against the current
// user's home directory. ~otheruser forms pass through unchanged;
// resolving another user's home would need a passwd lookup.
func ExpandHome(p string) string {
	rest, ok := strings.CutPrefix(p, "~/")
	if !ok && p != "~" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	if p == "~" {
		return home
	}
	return filepath.Join(home, rest)
}
