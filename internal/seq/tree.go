package seq

import (
	"fmt"
	"sort"
	"strings"
)

// maxTreeDepth caps reachability exploration so that tree construction
// itself terminates on pathological jump graphs.
const maxTreeDepth = 100

// NodeKind classifies reachability tree nodes.
type NodeKind int

const (
	// NodeJump is a jump branching once per distinct destination.
	NodeJump NodeKind = iota

	// NodePoint is a non-jump destination; execution continues at the
	// next chronological jump after it.
	NodePoint

	// NodeTerminator is a leaf reaching the end of the sequence.
	NodeTerminator

	// NodeLoop is a pruned leaf: the branch revisited a jump already in
	// its own history. Looping is allowed as long as some other branch
	// terminates.
	NodeLoop

	// NodeExhausted is a leaf cut off at the depth cap.
	NodeExhausted
)

// Node is one node of the reachability tree.
type Node struct {
	Kind     NodeKind
	Label    string
	Children []*Node
}

// Tree is the reachability tree of one sequence variant: rooted at the
// earliest jump, branching per destination, proving that at least one
// path reaches a terminating instruction.
type Tree struct {
	root *Node

	values      Values
	sortedJumps []timedJump
}

type timedJump struct {
	time float64
	jump *Jump
}

// BuildTree explores the jump graph of the sequence for one variant.
// Construction only fails when sequence times cannot be evaluated;
// whether the graph is acceptable is decided by Check.
func BuildTree(s *Sequence, values Values) (*Tree, error) {
	t := &Tree{values: values}
	for _, j := range s.Jumps() {
		time, err := j.SequenceTime(values)
		if err != nil {
			return nil, err
		}
		t.sortedJumps = append(t.sortedJumps, timedJump{time, j})
	}
	sort.Slice(t.sortedJumps, func(a, b int) bool {
		return t.sortedJumps[a].time < t.sortedJumps[b].time
	})

	if len(t.sortedJumps) == 0 {
		t.root = &Node{Kind: NodeTerminator, Label: "terminator"}
		return t, nil
	}
	root, err := t.branch(t.sortedJumps[0].jump, nil, 0)
	if err != nil {
		return nil, err
	}
	t.root = root
	return t, nil
}

// branch expands one jump into a node. visited is the set of jump names
// in this branch's own history; each child branch gets its own copy so
// sibling branches never see each other's loops.
func (t *Tree) branch(j *Jump, visited []string, depth int) (*Node, error) {
	if depth > maxTreeDepth {
		return &Node{Kind: NodeExhausted, Label: j.Name}, nil
	}
	for _, name := range visited {
		if name == j.Name {
			return &Node{Kind: NodeLoop, Label: j.Name}, nil
		}
	}
	visited = append(visited[:len(visited):len(visited)], j.Name)

	chain, err := j.CompressedChain()
	if err != nil {
		return nil, err
	}
	node := &Node{Kind: NodeJump, Label: j.Name}
	seen := make(map[string]bool)
	for _, entry := range chain {
		child, err := t.follow(j, entry.Target, visited, depth+1)
		if err != nil {
			return nil, err
		}
		if seen[child.Label] {
			continue
		}
		seen[child.Label] = true
		node.Children = append(node.Children, child)
	}
	return node, nil
}

// follow expands a single chain target into a child node.
func (t *Tree) follow(j *Jump, target Target, visited []string, depth int) (*Node, error) {
	switch target := target.(type) {
	case *Terminator:
		return &Node{Kind: NodeTerminator, Label: "terminator"}, nil

	case *Pass:
		// Falling through continues at the next jump after this one.
		time, err := j.SequenceTime(t.values)
		if err != nil {
			return nil, err
		}
		return t.continueAfter(time, fmt.Sprintf("pass(%s)", j.Name), visited, depth)

	case *Destination:
		if target.Ref.Kind == RefJump {
			return t.branch(target.Ref.jump, visited, depth)
		}
		time, err := target.Ref.Time(t.values)
		if err != nil {
			return nil, err
		}
		label := fmt.Sprintf("%s(%s)", target.Ref.Kind, target.Ref.Name)
		return t.continueAfter(time, label, visited, depth)
	}
	return nil, newError(ErrCodeInvalidDefinition, j.Name, "invalid jump target %T", target)
}

// continueAfter builds the node for execution resuming at a resolved
// time: the next chronological jump after it, or a terminator if none
// follows.
func (t *Tree) continueAfter(time float64, label string, visited []string, depth int) (*Node, error) {
	next := t.nextJump(time)
	if next == nil {
		return &Node{Kind: NodeTerminator, Label: label}, nil
	}
	child, err := t.branch(next, visited, depth+1)
	if err != nil {
		return nil, err
	}
	return &Node{Kind: NodePoint, Label: label, Children: []*Node{child}}, nil
}

// nextJump returns the first jump strictly after time, or nil.
func (t *Tree) nextJump(time float64) *Jump {
	for _, tj := range t.sortedJumps {
		if tj.time > time {
			return tj.jump
		}
	}
	return nil
}

// Check walks the built tree and requires that at least one leaf
// terminates the sequence. A branch cut off at the depth cap means the
// graph only spins and is rejected outright.
func (t *Tree) Check() error {
	terminators := 0
	var walk func(n *Node) error
	walk = func(n *Node) error {
		switch n.Kind {
		case NodeTerminator:
			terminators++
		case NodeLoop:
		case NodeExhausted:
			return newError(ErrCodeNoTerminator, n.Label,
				"jump graph exceeds depth %d, sequence contains infinite loops", maxTreeDepth)
		default:
			for _, c := range n.Children {
				if err := walk(c); err != nil {
					return err
				}
			}
		}
		return nil
	}
	if err := walk(t.root); err != nil {
		return err
	}
	if terminators == 0 {
		return newError(ErrCodeNoTerminator, t.root.Label, "no terminator is reachable")
	}
	return nil
}

// String renders the tree for diagnostics.
func (t *Tree) String() string {
	var b strings.Builder
	var render func(n *Node, indent int)
	render = func(n *Node, indent int) {
		b.WriteString(strings.Repeat("|    ", indent))
		switch n.Kind {
		case NodeTerminator:
			fmt.Fprintf(&b, "[== terminator: %s ==]\n", n.Label)
		case NodeLoop:
			fmt.Fprintf(&b, "[== loop: %s ==]\n", n.Label)
		case NodeExhausted:
			fmt.Fprintf(&b, "[== depth exceeded: %s ==]\n", n.Label)
		default:
			fmt.Fprintf(&b, "|-- %s\n", n.Label)
			for _, c := range n.Children {
				render(c, indent+1)
			}
		}
	}
	render(t.root, 0)
	return b.String()
}
