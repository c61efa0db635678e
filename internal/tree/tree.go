// Package tree folds accepted files into a directory hierarchy and renders it as text.
package tree

import (
	"path"
	"sort"
	"strings"

	"github.com/temirov/codeprompt/internal/types"
	"github.com/temirov/codeprompt/internal/utils"
)

const (
	treeBranchConnector = "├── "
	treeLastConnector   = "└── "
	treeBranchPadding   = "│   "
	treeLastPadding     = "    "
	lineBreak           = "\n"
)

// Build constructs the directory tree of entries under a root node named rootName.
// Intermediate directories are created on demand from an arena keyed by directory
// path; only directories needed to reach a file ever appear.
func Build(rootName string, entries []types.FileEntry) *types.TreeNode {
	rootNode := &types.TreeNode{Name: rootName, Kind: types.NodeTypeDirectory}
	nodeByPath := map[string]*types.TreeNode{"": rootNode}
	seenFiles := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		relativePath := strings.Join(utils.SplitPathSegments(entry.RelativePath), "/")
		if relativePath == "" {
			continue
		}
		if _, duplicate := seenFiles[relativePath]; duplicate {
			continue
		}
		seenFiles[relativePath] = struct{}{}
		parentNode := ensureDirectories(nodeByPath, parentDirectory(relativePath))
		parentNode.Children = append(parentNode.Children, &types.TreeNode{
			Name: path.Base(relativePath),
			Kind: types.NodeTypeFile,
		})
	}
	sortTreeChildren(rootNode)
	return rootNode
}

func parentDirectory(relativePath string) string {
	directory := path.Dir(relativePath)
	if directory == "." {
		return ""
	}
	return directory
}

func ensureDirectories(nodeByPath map[string]*types.TreeNode, directoryPath string) *types.TreeNode {
	if node, exists := nodeByPath[directoryPath]; exists {
		return node
	}
	parentNode := ensureDirectories(nodeByPath, parentDirectory(directoryPath))
	node := &types.TreeNode{Name: path.Base(directoryPath), Kind: types.NodeTypeDirectory}
	parentNode.Children = append(parentNode.Children, node)
	nodeByPath[directoryPath] = node
	return node
}

func sortTreeChildren(node *types.TreeNode) {
	sort.Slice(node.Children, func(left, right int) bool {
		return node.Children[left].Name < node.Children[right].Name
	})
	for _, child := range node.Children {
		sortTreeChildren(child)
	}
}

// Render draws the tree with box-drawing connectors, the root name on the first line.
func Render(root *types.TreeNode) string {
	if root == nil {
		return ""
	}
	var builder strings.Builder
	builder.WriteString(root.Name)
	builder.WriteString(lineBreak)
	renderChildren(&builder, root.Children, "")
	return strings.TrimSuffix(builder.String(), lineBreak)
}

func renderChildren(builder *strings.Builder, children []*types.TreeNode, prefix string) {
	for index, child := range children {
		connector, childPrefix := treeBranchConnector, prefix+treeBranchPadding
		if index == len(children)-1 {
			connector, childPrefix = treeLastConnector, prefix+treeLastPadding
		}
		builder.WriteString(prefix + connector + child.Name + lineBreak)
		if child.IsDirectory() {
			renderChildren(builder, child.Children, childPrefix)
		}
	}
}

// LeafPaths lists the relative paths of every file node in render order.
func LeafPaths(root *types.TreeNode) []string {
	if root == nil {
		return nil
	}
	var leafPaths []string
	var collect func(node *types.TreeNode, parent string)
	collect = func(node *types.TreeNode, parent string) {
		for _, child := range node.Children {
			childPath := path.Join(parent, child.Name)
			if child.IsDirectory() {
				collect(child, childPath)
				continue
			}
			leafPaths = append(leafPaths, childPath)
		}
	}
	collect(root, "")
	return leafPaths
}
