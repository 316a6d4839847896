package vault

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CalvinMagezi/agent-hq-sub000/errors"
)

func TestNotePathRejectsEscapes(t *testing.T) {
	v := newTestVault(t)

	cases := []string{
		"../outside",
		"/etc/passwd",
		"_system/MEMORY",
		"_fbmq/jobs/pending/sneaky",
		".",
	}
	for _, rel := range cases {
		_, err := v.CreateNote(rel, "body")
		require.Error(t, err, "path %q", rel)
		assert.True(t, errors.Is(err, errors.ErrInvalidRequest), "path %q", rel)
	}
}

func TestCreateAndReadNote(t *testing.T) {
	v := newTestVault(t)

	created, err := v.CreateNote("projects/launch", "# Launch\n\nShip it.")
	require.NoError(t, err)
	assert.Equal(t, 1, created.Front.Version)

	note, err := v.ReadNote("projects/launch.md")
	require.NoError(t, err)
	assert.Equal(t, "launch", note.Title)
	assert.Equal(t, "# Launch\n\nShip it.", note.Content)
	assert.Equal(t, 1, note.Front.Version)

	// creating over an existing note conflicts
	_, err = v.CreateNote("projects/launch", "other")
	assert.True(t, errors.IsConflictError(err))
}

func TestUpdateNoteBumpsVersion(t *testing.T) {
	v := newTestVault(t)

	_, err := v.CreateNote("ideas", "v1 body")
	require.NoError(t, err)

	updated, err := v.UpdateNote("ideas", "v2 body")
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Front.Version)

	note, err := v.ReadNote("ideas")
	require.NoError(t, err)
	assert.Equal(t, "v2 body", note.Content)
	assert.Equal(t, 2, note.Front.Version)

	_, err = v.UpdateNote("missing", "body")
	assert.True(t, errors.IsNotFoundError(err))
}

func TestSearchNotesRanksTitleAboveBody(t *testing.T) {
	v := newTestVault(t)

	_, err := v.CreateNote("kubernetes-runbook", "How to restart pods.")
	require.NoError(t, err)
	_, err = v.CreateNote("misc", "Mentions kubernetes once in passing.")
	require.NoError(t, err)

	results, err := v.SearchNotes("kubernetes", 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "kubernetes-runbook", results[0].Title)
	assert.Greater(t, results[0].Score, results[1].Score)
	assert.Contains(t, results[1].Snippet, "kubernetes")

	_, err = v.SearchNotes("   ", 10)
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))
}

func TestSearchNotesSkipsInfrastructure(t *testing.T) {
	v := newTestVault(t)

	_, err := v.CreateNote("visible", "needle here")
	require.NoError(t, err)
	require.NoError(t, v.WriteSystemFile("MEMORY.md", "needle in memory"))

	results, err := v.SearchNotes("needle", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "visible", results[0].Title)
}

func TestPinnedNotes(t *testing.T) {
	v := newTestVault(t)

	_, err := v.CreateNote("plain", "not pinned")
	require.NoError(t, err)
	_, err = v.CreateNote("important", "pin me")
	require.NoError(t, err)

	// pin by rewriting with frontmatter the way an editor would
	note, err := v.ReadNote("important")
	require.NoError(t, err)
	note.Front.Pinned = true
	rendered, err := renderNote(note.Front, note.Content)
	require.NoError(t, err)
	require.NoError(t, atomicWrite(note.Path, []byte(rendered)))

	pinned, err := v.PinnedNotes()
	require.NoError(t, err)
	require.Len(t, pinned, 1)
	assert.Equal(t, "important", pinned[0].Title)
}

func TestSplitFrontmatterWithoutBlock(t *testing.T) {
	fm, body := splitFrontmatter("just a body\nno delimiters")
	assert.Zero(t, fm.Version)
	assert.Equal(t, "just a body\nno delimiters", body)
}
