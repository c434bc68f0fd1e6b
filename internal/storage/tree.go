package storage

import (
	"path"
	"sort"
)

// TreeEntry is a node in the nested tree sent to clients.
type TreeEntry struct {
	Name     string       `json:"name"`
	Path     string       `json:"path"`
	Type     NodeType     `json:"type"`
	Size     int64        `json:"size,omitempty"`
	Children []*TreeEntry `json:"children,omitempty"`
}

// BuildTree nests a flat node list into a tree. Folders sort before files,
// then alphabetically. Folders implied by file paths but missing their own
// node still appear.
func BuildTree(nodes []Node) []*TreeEntry {
	byPath := make(map[string]*TreeEntry)
	var roots []*TreeEntry

	var ensure func(p string, typ NodeType, size int64) *TreeEntry
	ensure = func(p string, typ NodeType, size int64) *TreeEntry {
		if e, ok := byPath[p]; ok {
			return e
		}
		e := &TreeEntry{Name: path.Base(p), Path: p, Type: typ, Size: size}
		byPath[p] = e
		if dir := path.Dir(p); dir != "." {
			parent := ensure(dir, NodeFolder, 0)
			parent.Children = append(parent.Children, e)
		} else {
			roots = append(roots, e)
		}
		return e
	}

	for _, n := range nodes {
		e := ensure(n.Path, n.Type, n.Size)
		e.Type = n.Type
		e.Size = n.Size
	}

	sortTree(roots)
	return roots
}

func sortTree(entries []*TreeEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Type != entries[j].Type {
			return entries[i].Type == NodeFolder
		}
		return entries[i].Name < entries[j].Name
	})
	for _, e := range entries {
		sortTree(e.Children)
	}
}
