package threading

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func msg(id int64, messageID, subject, inReplyTo string, refs []string, offsetMin int) Threadable {
	return Threadable{
		ID:         id,
		MessageID:  messageID,
		Subject:    subject,
		InReplyTo:  inReplyTo,
		References: refs,
		Date:       baseTime.Add(time.Duration(offsetMin) * time.Minute),
	}
}

func TestIDTableCompleteness(t *testing.T) {
	messages := []Threadable{
		msg(1, "a", "First", "", nil, 0),
		msg(2, "b", "Re: First", "a", []string{"a"}, 10),
		msg(3, "c", "Other", "", []string{"x", "y"}, 20),
	}

	th := NewThreader()
	th.buildIDTable(messages)

	// One container per distinct id seen anywhere, keyed by that id.
	require.Len(t, th.arena, 5)
	for _, id := range []string{"a", "b", "c", "x", "y"} {
		idx, ok := th.index[id]
		require.True(t, ok, "missing container for %q", id)
		assert.Equal(t, id, th.arena[idx].messageID)
	}

	// Real messages have payloads, referenced-only ids are dummies.
	assert.True(t, th.arena[th.index["a"]].hasEmail)
	assert.True(t, th.arena[th.index["b"]].hasEmail)
	assert.False(t, th.arena[th.index["x"]].hasEmail)
	assert.False(t, th.arena[th.index["y"]].hasEmail)
}

func TestIDTableAttachesPayloadToDummy(t *testing.T) {
	// "a" first shows up as a reference, then as a real message. The
	// dummy container must gain the payload, not be replaced.
	messages := []Threadable{
		msg(1, "b", "Re: Hi", "a", []string{"a"}, 10),
		msg(2, "a", "Hi", "", nil, 0),
	}

	th := NewThreader()
	th.buildIDTable(messages)

	require.Len(t, th.arena, 2)
	a := th.arena[th.index["a"]]
	assert.True(t, a.hasEmail)
	assert.Equal(t, int64(2), a.emailID)
	assert.Equal(t, "Hi", a.subject)
}

func TestSimpleReplyThread(t *testing.T) {
	messages := []Threadable{
		msg(1, "a", "Hello", "", nil, 0),
		msg(2, "b", "Re: Hello", "a", []string{"a"}, 10),
	}

	trees := NewThreader().Thread(messages)

	require.Len(t, trees, 1)
	root := trees[0]
	assert.Equal(t, "a", root.MessageID)
	assert.Equal(t, int64(1), root.EmailID)
	assert.False(t, root.IsDummy)
	require.Len(t, root.Children, 1)
	assert.Equal(t, "b", root.Children[0].MessageID)
	assert.Empty(t, root.Children[0].Children)
}

func TestFirstParentWins(t *testing.T) {
	// "c" is claimed by "a" first; a later reference from "b" must not
	// relink it.
	messages := []Threadable{
		msg(1, "a", "Root A", "", nil, 0),
		msg(2, "b", "Root B", "", nil, 5),
		msg(3, "c", "Re: Root A", "a", []string{"a"}, 10),
		msg(4, "d", "Re: Root B", "", []string{"b", "c"}, 15),
	}

	th := NewThreader()
	th.buildIDTable(messages)
	th.linkMessages(messages)

	c := th.arena[th.index["c"]]
	assert.Equal(t, th.index["a"], c.parent)
	// "b" still lists "c" as a child edge even though "c" kept its
	// original parent.
	assert.Contains(t, th.arena[th.index["b"]].children, th.index["c"])
}

func TestEffectiveChainDeduplicates(t *testing.T) {
	m := msg(1, "d", "", "b", []string{"a", "b", "a", "c"}, 0)
	assert.Equal(t, []string{"a", "b", "c"}, effectiveChain(m))

	m = msg(1, "d", "", "x", []string{"a"}, 0)
	assert.Equal(t, []string{"a", "x"}, effectiveChain(m))
}

func TestDanglingReferenceDiscarded(t *testing.T) {
	// "b" references a message nobody has; the dummy root is discarded
	// and "b" promoted, so no placeholder reaches the output.
	messages := []Threadable{
		msg(1, "b", "Lost thread", "x", []string{"x"}, 0),
	}

	trees := NewThreader().Thread(messages)

	require.Len(t, trees, 1)
	assert.Equal(t, "b", trees[0].MessageID)
	assert.False(t, trees[0].IsDummy)
	assert.Empty(t, trees[0].Children)
}

func TestDummyLeafSurvivesSinglePassPrune(t *testing.T) {
	// "c" references two unseen ancestors. Pruning promotes "b" out of
	// the dummy root "a", but "b" itself stays a dummy root: a
	// renderable placeholder, not an error.
	messages := []Threadable{
		msg(1, "c", "Deep reply", "", []string{"a", "b"}, 0),
	}

	trees := NewThreader().Thread(messages)

	require.Len(t, trees, 1)
	root := trees[0]
	assert.Equal(t, "b", root.MessageID)
	assert.True(t, root.IsDummy)
	require.Len(t, root.Children, 1)
	assert.Equal(t, "c", root.Children[0].MessageID)
}

func TestSubjectGroupingMergesSplitThreads(t *testing.T) {
	// No headers connect these, but the normalized subjects match; the
	// input-order-earlier root becomes the canonical parent.
	messages := []Threadable{
		msg(1, "a", "Project X", "", nil, 0),
		msg(2, "b", "Re: Project X", "", nil, 10),
	}

	trees := NewThreader().Thread(messages)

	require.Len(t, trees, 1)
	assert.Equal(t, "a", trees[0].MessageID)
	require.Len(t, trees[0].Children, 1)
	assert.Equal(t, "b", trees[0].Children[0].MessageID)
}

func TestSubjectGroupingOnlyAppliesToRoots(t *testing.T) {
	// "c" is already linked under "a"; sharing a subject with "b" must
	// not pull it out of its thread.
	messages := []Threadable{
		msg(1, "a", "Alpha", "", nil, 0),
		msg(2, "b", "Beta", "", nil, 5),
		msg(3, "c", "Beta", "a", []string{"a"}, 10),
	}

	trees := NewThreader().Thread(messages)

	require.Len(t, trees, 2)
	byID := map[string]*ThreadNode{}
	for _, tree := range trees {
		byID[tree.MessageID] = tree
	}
	require.Contains(t, byID, "a")
	require.Contains(t, byID, "b")
	require.Len(t, byID["a"].Children, 1)
	assert.Equal(t, "c", byID["a"].Children[0].MessageID)
	assert.Empty(t, byID["b"].Children)
}

func TestChildrenSortedOldestFirst(t *testing.T) {
	messages := []Threadable{
		msg(1, "a", "Root", "", nil, 0),
		msg(2, "b", "Re: Root", "a", []string{"a"}, 30),
		msg(3, "c", "Re: Root", "a", []string{"a"}, 10),
		msg(4, "d", "Re: Root", "a", []string{"a"}, 20),
	}

	trees := NewThreader().Thread(messages)

	require.Len(t, trees, 1)
	require.Len(t, trees[0].Children, 3)
	assert.Equal(t, "c", trees[0].Children[0].MessageID)
	assert.Equal(t, "d", trees[0].Children[1].MessageID)
	assert.Equal(t, "b", trees[0].Children[2].MessageID)
}

func TestForestSortedNewestRootFirst(t *testing.T) {
	messages := []Threadable{
		msg(1, "old", "Old news", "", nil, 0),
		msg(2, "new", "Fresh", "", nil, 60),
	}

	trees := NewThreader().Thread(messages)

	require.Len(t, trees, 2)
	assert.Equal(t, "new", trees[0].MessageID)
	assert.Equal(t, "old", trees[1].MessageID)
}

func TestPipelineIdempotent(t *testing.T) {
	messages := []Threadable{
		msg(1, "a", "Project X", "", nil, 0),
		msg(2, "b", "Re: Project X", "a", []string{"a"}, 10),
		msg(3, "c", "Project X", "", nil, 20),
		msg(4, "d", "Unrelated", "", []string{"ghost"}, 30),
	}

	first := NewThreader().Thread(messages)
	second := NewThreader().Thread(messages)

	assert.Equal(t, first, second)
}

func TestCycleGuardBreaksForgedReferences(t *testing.T) {
	// "z" forges a chain that adds a child edge from "y" back to "x",
	// creating a loop below the root. The walk must terminate and skip
	// the repeated node.
	messages := []Threadable{
		msg(1, "r", "Root", "", nil, 0),
		msg(2, "x", "Re: Root", "", []string{"r"}, 10),
		msg(3, "y", "Re: Root", "", []string{"r", "x"}, 20),
		msg(4, "z", "Re: Root", "", []string{"y", "x"}, 30),
	}

	trees := NewThreader().Thread(messages)

	require.Len(t, trees, 1)
	root := trees[0]
	assert.Equal(t, "r", root.MessageID)
	require.Len(t, root.Children, 1)

	x := root.Children[0]
	assert.Equal(t, "x", x.MessageID)
	require.Len(t, x.Children, 2)
	for _, child := range x.Children {
		if child.MessageID == "y" {
			// The back edge to "x" was dropped by the visited set.
			assert.Empty(t, child.Children)
		}
	}
}
