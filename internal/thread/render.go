// ABOUTME: Tree traversal and plain-text rendering for assembled threads.
// ABOUTME: Both stop at MaxDepth even if a tree was built deeper by hand.
package thread

import (
	"fmt"
	"io"
	"strings"

	"github.com/2389-research/murmur/internal/models"
)

// Walk visits node and its descendants depth-first with their distance from
// node, skipping anything more than MaxDepth below it. The stored Depth
// fields are not consulted.
func Walk(node *models.ThreadNode, fn func(n *models.ThreadNode, depth int)) {
	walk(node, 0, fn)
}

func walk(node *models.ThreadNode, depth int, fn func(*models.ThreadNode, int)) {
	if node == nil || depth > MaxDepth {
		return
	}
	fn(node, depth)
	for _, child := range node.Children {
		walk(child, depth+1, fn)
	}
}

// Count returns the number of nodes at each depth.
func Count(node *models.ThreadNode) []int {
	counts := make([]int, MaxDepth+1)
	Walk(node, func(_ *models.ThreadNode, depth int) {
		counts[depth]++
	})
	return counts
}

// Render writes the ancestors and the reply tree as indented text.
func Render(w io.Writer, res *Result) error {
	for _, p := range res.Ancestors {
		if _, err := fmt.Fprintf(w, "^ %s\n", line(p)); err != nil {
			return err
		}
	}
	var err error
	Walk(res.Root, func(n *models.ThreadNode, depth int) {
		if err != nil {
			return
		}
		prefix := "* "
		if depth > 0 {
			prefix = strings.Repeat("  ", depth-1) + "└ "
		}
		_, err = fmt.Fprintf(w, "%s%s\n", prefix, line(n.Post))
	})
	return err
}

func line(p models.Post) string {
	return fmt.Sprintf("[%s] %s: %s", p.ID, p.Account.Handle(), p.Text())
}
