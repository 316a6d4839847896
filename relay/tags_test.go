package relay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CalvinMagezi/agent-hq-sub000/ai/openrouter"
	"github.com/CalvinMagezi/agent-hq-sub000/bus"
	"github.com/CalvinMagezi/agent-hq-sub000/config"
	"github.com/CalvinMagezi/agent-hq-sub000/vault"
)

func newTestGateway(t *testing.T, apiKey string) *Gateway {
	t.Helper()

	v, err := vault.New(t.TempDir())
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.Server.Host = config.DefaultServerHost
	cfg.Server.Port = config.DefaultServerPort
	cfg.Auth.APIKey = apiKey
	cfg.Chat.DefaultModel = "anthropic/claude-sonnet-4"

	changeBus := bus.New()
	t.Cleanup(changeBus.Close)

	return New(cfg, v, changeBus, nil, openrouter.NewClient(""))
}

func TestProcessMemoryTagsStripsAndRecords(t *testing.T) {
	g := newTestGateway(t, "")

	in := "Sure! [REMEMBER: User prefers concise answers]\nHere you go. [GOAL: Ship v1 | DEADLINE: 2025-06-01]"
	out := g.processMemoryTags(in)
	assert.Equal(t, "Sure!\nHere you go.", out)

	memory, err := g.vault.ReadMemory(0)
	require.NoError(t, err)
	assert.Contains(t, memory, "User prefers concise answers")
	assert.Contains(t, memory, "- [ ] Ship v1 (deadline: 2025-06-01)")
}

func TestProcessMemoryTagsPassesPlainTextThrough(t *testing.T) {
	g := newTestGateway(t, "")

	in := "  No tags here.\nJust two lines of text.  "
	assert.Equal(t, "No tags here.\nJust two lines of text.", g.processMemoryTags(in))

	memory, err := g.vault.ReadMemory(0)
	require.NoError(t, err)
	assert.Empty(t, memory)
}

func TestProcessMemoryTagsGoalWithoutDeadline(t *testing.T) {
	g := newTestGateway(t, "")

	out := g.processMemoryTags("Noted. [GOAL: Write the launch post]")
	assert.Equal(t, "Noted.", out)

	memory, err := g.vault.ReadMemory(0)
	require.NoError(t, err)
	assert.Contains(t, memory, "- [ ] Write the launch post")
	assert.NotContains(t, memory, "deadline")
}

func TestProcessMemoryTagsDoneClosesGoal(t *testing.T) {
	g := newTestGateway(t, "")

	require.NoError(t, g.vault.AppendGoal("Ship v1", ""))

	out := g.processMemoryTags("Congrats on shipping! [DONE: ship v1]")
	assert.Equal(t, "Congrats on shipping!", out)

	memory, err := g.vault.ReadMemory(0)
	require.NoError(t, err)
	assert.Contains(t, memory, "- [x] ~~Ship v1~~")
}

func TestProcessMemoryTagsLeavesDegenerateTagsAlone(t *testing.T) {
	g := newTestGateway(t, "")

	// too short, too few letters, reserved endpoint: none should fire
	cases := []string{
		"Text [REMEMBER: ab] more",
		"Text [REMEMBER: 12345678] more",
		"Text [REMEMBER: :starts with colon] more",
	}
	for _, in := range cases {
		out := g.processMemoryTags(in)
		assert.Equal(t, in, out, "input %q", in)
	}

	memory, err := g.vault.ReadMemory(0)
	require.NoError(t, err)
	assert.Empty(t, memory)
}

func TestProcessMemoryTagsMultipleFacts(t *testing.T) {
	g := newTestGateway(t, "")

	in := "[REMEMBER: Likes coffee][REMEMBER: Works remotely] Done."
	out := g.processMemoryTags(in)
	assert.Equal(t, "Done.", out)

	memory, err := g.vault.ReadMemory(0)
	require.NoError(t, err)
	assert.Contains(t, memory, "Likes coffee")
	assert.Contains(t, memory, "Works remotely")
}
