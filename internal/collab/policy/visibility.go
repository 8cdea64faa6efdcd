// Package policy holds the pure rules a room is evaluated with: path
// visibility for guests, per-document permission levels and who may
// type into the shared terminal. Nothing here touches the document.
package policy

import (
	"strings"

	"github.com/tidwall/match"

	"saturuang/internal/collab/model"
)

// NormalizePath converts separators to "/", collapses repeated slashes
// and drops a trailing slash except on the root.
func NormalizePath(p string) string {
	p = strings.ReplaceAll(p, `\`, "/")
	for strings.Contains(p, "//") {
		p = strings.ReplaceAll(p, "//", "/")
	}
	if len(p) > 1 {
		p = strings.TrimSuffix(p, "/")
	}
	return p
}

// globComplexity bounds the work of one match to this many steps per
// byte of the path.
const globComplexity = 64

// MatchGlob reports whether the whole of path matches pattern. "*" matches
// any run of characters including separators, "?" exactly one character;
// everything else is literal. Matching ignores case. A match that runs
// past its work limit counts as a match, so an expensive pattern hides
// or excludes instead of revealing.
func MatchGlob(pattern, path string) bool {
	pattern = strings.ToLower(NormalizePath(pattern))
	path = strings.ToLower(NormalizePath(path))
	matched, stopped := match.MatchLimit(path, pattern, globComplexity)
	return matched || stopped
}

func matchAny(patterns []string, path string) bool {
	for _, p := range patterns {
		if strings.TrimSpace(p) == "" {
			continue
		}
		if MatchGlob(p, path) {
			return true
		}
	}
	return false
}

// UnderRoot reports whether path equals root or lies beneath it.
func UnderRoot(root, path string) bool {
	root = NormalizePath(root)
	path = NormalizePath(path)
	if root == "/" {
		return strings.HasPrefix(path, "/")
	}
	return path == root || strings.HasPrefix(path, root+"/")
}

// PathAccess decides whether path is visible. The host (asGuest false)
// always sees everything; for guests the first failing rule wins:
// sharing off, outside the share roots, excluded, hidden.
func PathAccess(vis model.VisibilityPolicy, path string, asGuest bool) model.PathAccess {
	if !asGuest {
		return model.PathAccess{OK: true}
	}
	if !vis.ShareTreeEnabled {
		return model.PathAccess{Reason: model.ReasonTreeNotShared}
	}
	path = NormalizePath(path)
	if len(vis.ShareRoots) > 0 {
		inside := false
		for _, root := range vis.ShareRoots {
			if strings.TrimSpace(root) != "" && UnderRoot(root, path) {
				inside = true
				break
			}
		}
		if !inside {
			return model.PathAccess{Reason: model.ReasonOutsideSharedRoots}
		}
	}
	if matchAny(vis.ExcludePatterns, path) {
		return model.PathAccess{Reason: model.ReasonExcluded}
	}
	if matchAny(vis.HidePatterns, path) {
		return model.PathAccess{Reason: model.ReasonHidden}
	}
	return model.PathAccess{OK: true}
}

// FilterVisible keeps the paths PathAccess allows, in order. Listing and
// opening go through the same check.
func FilterVisible(vis model.VisibilityPolicy, paths []string, asGuest bool) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if PathAccess(vis, p, asGuest).OK {
			out = append(out, p)
		}
	}
	return out
}
