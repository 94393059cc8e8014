package harvest

import "iter"

// Walk yields every part of the tree rooted at root, depth-first in
// declaration order. It uses an explicit stack, so deeply nested messages do
// not grow the call stack.
func Walk(root *Part) iter.Seq[*Part] {
	return func(yield func(*Part) bool) {
		if root == nil {
			return
		}

		stack := []*Part{root}
		for len(stack) > 0 {
			p := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if p == nil {
				continue
			}

			if !yield(p) {
				return
			}

			// Push in reverse so the first child is visited first.
			for i := len(p.Children) - 1; i >= 0; i-- {
				stack = append(stack, p.Children[i])
			}
		}
	}
}

// Candidates yields the attachment candidates nested under root in the same
// order as Walk. Structural parts are traversed but never yielded. The root
// itself is the message payload and is never a candidate, so a payload
// without nested parts yields nothing.
func Candidates(root *Part) iter.Seq[*Part] {
	return func(yield func(*Part) bool) {
		for p := range Walk(root) {
			if p == root || !p.IsCandidate() {
				continue
			}
			if !yield(p) {
				return
			}
		}
	}
}
