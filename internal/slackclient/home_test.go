package slackclient

import (
	"strings"
	"testing"

	"goodnoodle/internal/models"

	"github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sectionTexts(blocks []slack.Block) []string {
	var out []string
	for _, b := range blocks {
		if s, ok := b.(*slack.SectionBlock); ok {
			out = append(out, s.Text.Text)
		}
	}
	return out
}

func TestRenderHome(t *testing.T) {
	alice := &models.User{SlackUserID: "UALICE00001", TokensReceived: 3, TokensSent: 1}
	bob := &models.User{SlackUserID: "UBOB0000001", TokensReceived: 1}
	d := &models.Dashboard{
		Viewer:    alice,
		Remaining: 4,
		Allowance: 5,
		Marker:    ":token:",
		Leaderboard: []models.LeaderboardRow{
			{Rank: 1, User: alice},
			{Rank: 2, User: bob},
		},
	}

	blocks := RenderHome(d)
	require.Len(t, blocks, 7)
	assert.Equal(t, slack.MBTHeader, blocks[1].BlockType())
	assert.Equal(t, slack.MBTDivider, blocks[2].BlockType())

	texts := sectionTexts(blocks)
	require.Len(t, texts, 3)
	assert.Equal(t, "*Welcome, <@UALICE00001> :house:*", texts[0])
	assert.Equal(t, "Received: 3 :token:\n\nGiven: 1 :token:\n\nLeft to Give this week: 4 :token:", texts[1])
	assert.Equal(t, "*1.) <@UALICE00001>:* :token::token::token: (3)\n\n*2.) <@UBOB0000001>:* :token: (1)", texts[2])
}

func TestRenderHome_EmptyLeaderboard(t *testing.T) {
	d := &models.Dashboard{Viewer: &models.User{SlackUserID: "UALICE00001"}, Marker: ":token:", Remaining: 5}
	blocks := RenderHome(d)
	assert.Len(t, blocks, 6)
}

func TestLeaderboardLine_NoTokens(t *testing.T) {
	line := LeaderboardLine(models.LeaderboardRow{Rank: 4, User: &models.User{SlackUserID: "UX000000001"}}, ":good-noodle:")
	assert.Equal(t, "*4.) <@UX000000001>:*  (0)", line)
}

func TestSplitSections(t *testing.T) {
	lines := []string{strings.Repeat("a", 6), strings.Repeat("b", 6), strings.Repeat("c", 6)}
	assert.Equal(t, []string{"aaaaaa\n\nbbbbbb", "cccccc"}, splitSections(lines, "\n\n", 14))
	assert.Equal(t, []string{"aaaa"}, splitSections([]string{"aaaaaa"}, "\n\n", 4))
	assert.Empty(t, splitSections(nil, "\n\n", 10))
}
