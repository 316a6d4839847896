package vault

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CalvinMagezi/agent-hq-sub000/errors"
)

func TestReadMemoryMissingFile(t *testing.T) {
	v := newTestVault(t)

	content, err := v.ReadMemory(0)
	require.NoError(t, err)
	assert.Empty(t, content)
}

func TestAppendFactCreatesSection(t *testing.T) {
	v := newTestVault(t)

	require.NoError(t, v.AppendFact("User prefers concise answers"))
	require.NoError(t, v.AppendFact("User lives in Kampala"))

	content, err := v.ReadMemory(0)
	require.NoError(t, err)
	assert.Contains(t, content, "## Facts")
	assert.Contains(t, content, "- User prefers concise answers _(noted ")
	assert.Contains(t, content, "- User lives in Kampala _(noted ")

	// both facts land in the same section, in append order
	first := strings.Index(content, "concise answers")
	second := strings.Index(content, "Kampala")
	assert.Less(t, first, second)

	err = v.AppendFact("   ")
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))
}

func TestAppendGoalAndMarkDone(t *testing.T) {
	v := newTestVault(t)

	require.NoError(t, v.AppendGoal("Ship v1", "2025-06-01"))
	require.NoError(t, v.AppendGoal("Write blog post", ""))

	content, err := v.ReadMemory(0)
	require.NoError(t, err)
	assert.Contains(t, content, "- [ ] Ship v1 (deadline: 2025-06-01)")
	assert.Contains(t, content, "- [ ] Write blog post")

	require.NoError(t, v.MarkGoalDone("ship v1"))

	content, err = v.ReadMemory(0)
	require.NoError(t, err)
	assert.Contains(t, content, "- [x] ~~Ship v1 (deadline: 2025-06-01)~~")
	assert.Contains(t, content, "- [ ] Write blog post")

	// already closed; nothing left to match
	err = v.MarkGoalDone("ship v1")
	assert.True(t, errors.IsNotFoundError(err))
}

func TestMarkGoalDoneUnknown(t *testing.T) {
	v := newTestVault(t)
	require.NoError(t, v.AppendGoal("Existing goal", ""))

	err := v.MarkGoalDone("nonexistent goal")
	assert.True(t, errors.IsNotFoundError(err))
}

func TestFactsAndGoalsKeepSeparateSections(t *testing.T) {
	v := newTestVault(t)

	require.NoError(t, v.AppendFact("fact one"))
	require.NoError(t, v.AppendGoal("goal one", ""))
	require.NoError(t, v.AppendFact("fact two"))

	content, err := v.ReadMemory(0)
	require.NoError(t, err)

	factsIdx := strings.Index(content, "## Facts")
	goalsIdx := strings.Index(content, "## Goals")
	require.GreaterOrEqual(t, factsIdx, 0)
	require.Greater(t, goalsIdx, factsIdx)

	factsSection := content[factsIdx:goalsIdx]
	assert.Contains(t, factsSection, "fact one")
	assert.Contains(t, factsSection, "fact two")
	assert.NotContains(t, factsSection, "goal one")
}

func TestReadMemoryTruncates(t *testing.T) {
	v := newTestVault(t)
	require.NoError(t, v.WriteSystemFile(MemoryFile, strings.Repeat("x", 100)))

	content, err := v.ReadMemory(10)
	require.NoError(t, err)
	assert.Len(t, content, 10)
}

func TestReadMemoryStripsFrontmatter(t *testing.T) {
	v := newTestVault(t)

	// the vault is hand-editable; a frontmatter block is a realistic shape
	raw := "---\ntitle: memory\ntags: [system]\n---\n## Facts\n- a fact\n"
	require.NoError(t, v.WriteSystemFile(MemoryFile, raw))

	content, err := v.ReadMemory(1536)
	require.NoError(t, err)
	assert.NotContains(t, content, "title: memory")
	assert.NotContains(t, content, "---")
	assert.Contains(t, content, "## Facts")
	assert.Contains(t, content, "- a fact")

	// the cap applies after stripping: a small budget still yields body text
	content, err = v.ReadMemory(8)
	require.NoError(t, err)
	assert.Equal(t, "## Facts", content)
}
