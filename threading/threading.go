package threading

import (
	"sort"
	"time"

	"nestmail/utils"
)

// Threadable is the projection of a stored email the threader operates on.
type Threadable struct {
	ID         int64
	MessageID  string
	Subject    string
	InReplyTo  string // empty when the header was absent
	References []string
	Date       time.Time
}

// ThreadNode is one node of the finished thread tree. Children are sorted
// oldest first; a dummy node stands for a message that was referenced but
// never observed.
type ThreadNode struct {
	EmailID   int64         `json:"email_id"`
	MessageID string        `json:"message_id"`
	Subject   string        `json:"subject"`
	Date      time.Time     `json:"date"`
	Children  []*ThreadNode `json:"children"`
	IsDummy   bool          `json:"is_dummy"`
}

// none marks an unset parent edge.
const none = -1

// container is one arena slot. Edges are arena indices, not message ids,
// so the build/link/prune/group passes never re-hash a key.
type container struct {
	messageID string
	emailID   int64
	hasEmail  bool
	subject   string
	date      time.Time
	parent    int
	children  []int
}

// Threader runs the JWZ threading passes over one message snapshot.
// Every message id seen anywhere (as a message or inside a reference
// chain) gets exactly one container. A Threader holds no state between
// calls to Thread; it is cheap to construct and safe to discard.
type Threader struct {
	arena []container
	index map[string]int
}

// NewThreader creates a new threader
func NewThreader() *Threader {
	return &Threader{index: make(map[string]int)}
}

// Thread groups messages into a forest of thread trees: id table, link,
// prune, subject group, tree build. The forest is sorted newest root
// first; within a tree children are sorted oldest first.
func (t *Threader) Thread(messages []Threadable) []*ThreadNode {
	t.arena = t.arena[:0]
	t.index = make(map[string]int, len(messages))

	t.buildIDTable(messages)
	t.linkMessages(messages)
	roots := t.findRoots()
	roots = t.pruneEmptyContainers(roots)
	roots = t.groupBySubject(roots)
	return t.buildForest(roots)
}

// intern returns the arena index for messageID, creating an empty
// container if none exists yet.
func (t *Threader) intern(messageID string) int {
	if idx, ok := t.index[messageID]; ok {
		return idx
	}
	idx := len(t.arena)
	t.arena = append(t.arena, container{messageID: messageID, parent: none})
	t.index[messageID] = idx
	return idx
}

// buildIDTable ensures a container exists for every message and for every
// id its headers reference. A message payload attaches to a pre-existing
// dummy container instead of replacing it; if two messages carry the same
// id the first one wins.
func (t *Threader) buildIDTable(messages []Threadable) {
	for _, msg := range messages {
		idx := t.intern(msg.MessageID)
		if !t.arena[idx].hasEmail {
			t.arena[idx].emailID = msg.ID
			t.arena[idx].hasEmail = true
			t.arena[idx].subject = msg.Subject
			t.arena[idx].date = msg.Date
		}

		for _, ref := range msg.References {
			t.intern(ref)
		}
		if msg.InReplyTo != "" {
			t.intern(msg.InReplyTo)
		}
	}
}

// effectiveChain builds the reference walk for a message: References in
// order, with In-Reply-To appended when not already present, duplicates
// removed preserving first occurrence.
func effectiveChain(msg Threadable) []string {
	chain := make([]string, 0, len(msg.References)+1)
	seen := make(map[string]bool, len(msg.References)+1)
	for _, ref := range msg.References {
		if !seen[ref] {
			seen[ref] = true
			chain = append(chain, ref)
		}
	}
	if msg.InReplyTo != "" && !seen[msg.InReplyTo] {
		chain = append(chain, msg.InReplyTo)
	}
	return chain
}

// linkMessages wires parent/child edges along each message's reference
// chain. The last chain entry gets the message itself as a child. A
// container keeps its first assigned parent forever; later, possibly
// better references never relink it.
func (t *Threader) linkMessages(messages []Threadable) {
	for _, msg := range messages {
		chain := effectiveChain(msg)
		selfIdx := t.index[msg.MessageID]

		for i, ref := range chain {
			parentIdx := t.index[ref]

			childIdx := selfIdx
			if i+1 < len(chain) {
				childIdx = t.index[chain[i+1]]
			}
			if parentIdx == childIdx {
				continue
			}

			if !containsIndex(t.arena[parentIdx].children, childIdx) {
				t.arena[parentIdx].children = append(t.arena[parentIdx].children, childIdx)
			}
			if t.arena[childIdx].parent == none {
				t.arena[childIdx].parent = parentIdx
			}
		}
	}
}

// findRoots returns all parentless containers in arena insertion order,
// which for real messages is the original input order.
func (t *Threader) findRoots() []int {
	var roots []int
	for idx := range t.arena {
		if t.arena[idx].parent == none {
			roots = append(roots, idx)
		}
	}
	return roots
}

// pruneEmptyContainers drops dummy roots. A dummy with no children is a
// dangling reference and disappears; a dummy with children is discarded
// and its children promoted to roots. Roots with a backing message are
// kept regardless of children.
func (t *Threader) pruneEmptyContainers(roots []int) []int {
	pruned := make([]int, 0, len(roots))

	for _, rootIdx := range roots {
		root := &t.arena[rootIdx]

		if !root.hasEmail && len(root.children) == 0 {
			continue
		}

		if !root.hasEmail {
			for _, childIdx := range root.children {
				t.arena[childIdx].parent = none
				pruned = append(pruned, childIdx)
			}
			continue
		}

		pruned = append(pruned, rootIdx)
	}

	return pruned
}

// groupBySubject merges roots that share a normalized subject, so split
// threads missing their reference headers still collapse into one
// conversation. Only roots participate; the first root seen with a
// subject becomes the canonical parent for it. Dummy roots carry no
// subject and are kept as-is.
func (t *Threader) groupBySubject(roots []int) []int {
	subjectTable := make(map[string]int)
	grouped := make([]int, 0, len(roots))

	for _, rootIdx := range roots {
		if !t.arena[rootIdx].hasEmail {
			grouped = append(grouped, rootIdx)
			continue
		}

		norm := NormalizeSubject(t.arena[rootIdx].subject)
		if existingIdx, ok := subjectTable[norm]; ok {
			if !containsIndex(t.arena[existingIdx].children, rootIdx) {
				t.arena[existingIdx].children = append(t.arena[existingIdx].children, rootIdx)
			}
			t.arena[rootIdx].parent = existingIdx
			continue
		}

		subjectTable[norm] = rootIdx
		grouped = append(grouped, rootIdx)
	}

	return grouped
}

// buildForest converts the surviving roots into immutable thread trees
// and sorts them newest first. A container without a date (a dummy)
// sorts as if it were brand new.
func (t *Threader) buildForest(roots []int) []*ThreadNode {
	now := time.Now()
	trees := make([]*ThreadNode, 0, len(roots))

	for _, rootIdx := range roots {
		visited := make(map[int]bool)
		if node := t.buildNode(rootIdx, visited, now); node != nil {
			trees = append(trees, node)
		}
	}

	sort.SliceStable(trees, func(i, j int) bool {
		return orderDate(trees[i].Date, now).After(orderDate(trees[j].Date, now))
	})

	return trees
}

// buildNode recursively converts a container into a ThreadNode. The
// linking rule cannot create cycles on well-formed input, but forged
// References headers could; the visited set breaks the walk instead of
// recursing forever.
func (t *Threader) buildNode(idx int, visited map[int]bool, now time.Time) *ThreadNode {
	if visited[idx] {
		utils.Log.Warn("threading: reference cycle at %q, breaking walk", t.arena[idx].messageID)
		return nil
	}
	visited[idx] = true

	c := t.arena[idx]
	node := &ThreadNode{
		EmailID:   c.emailID,
		MessageID: c.messageID,
		Subject:   c.subject,
		Date:      c.date,
		IsDummy:   !c.hasEmail,
	}

	for _, childIdx := range c.children {
		if child := t.buildNode(childIdx, visited, now); child != nil {
			node.Children = append(node.Children, child)
		}
	}

	sort.SliceStable(node.Children, func(i, j int) bool {
		return orderDate(node.Children[i].Date, now).Before(orderDate(node.Children[j].Date, now))
	})

	return node
}

func orderDate(d time.Time, now time.Time) time.Time {
	if d.IsZero() {
		return now
	}
	return d
}

func containsIndex(list []int, idx int) bool {
	for _, v := range list {
		if v == idx {
			return true
		}
	}
	return false
}
