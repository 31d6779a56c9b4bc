package domain

import "sort"

// TreeDiff lists the module keys whose slices differ between two trees.
type TreeDiff struct {
	// Changed holds keys present in both trees with different slices.
	Changed []string `json:"changed,omitempty"`

	// Added holds keys only present in the new tree.
	Added []string `json:"added,omitempty"`

	// Removed holds keys only present in the old tree.
	Removed []string `json:"removed,omitempty"`
}

// Empty reports whether the diff carries no changes.
func (d *TreeDiff) Empty() bool {
	return d == nil || len(d.Changed)+len(d.Added)+len(d.Removed) == 0
}

// Touches reports whether any of the given keys changed, appeared or disappeared.
func (d *TreeDiff) Touches(keys ...string) bool {
	if d.Empty() {
		return false
	}
	for _, k := range keys {
		for _, group := range [][]string{d.Changed, d.Added, d.Removed} {
			for _, g := range group {
				if g == k {
					return true
				}
			}
		}
	}
	return false
}

// Diff compares two trees slice by slice using Identical.
// The reserved persistence key is ignored. Returns nil when nothing changed.
func Diff(oldTree, newTree Tree) *TreeDiff {
	diff := &TreeDiff{}

	for k, nv := range newTree {
		if k == PersistKey {
			continue
		}
		ov, ok := oldTree[k]
		if !ok {
			diff.Added = append(diff.Added, k)
			continue
		}
		if !Identical(ov, nv) {
			diff.Changed = append(diff.Changed, k)
		}
	}
	for k := range oldTree {
		if k == PersistKey {
			continue
		}
		if _, ok := newTree[k]; !ok {
			diff.Removed = append(diff.Removed, k)
		}
	}

	if diff.Empty() {
		return nil
	}
	sort.Strings(diff.Changed)
	sort.Strings(diff.Added)
	sort.Strings(diff.Removed)
	return diff
}
