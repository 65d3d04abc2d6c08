package slackclient

import (
	"fmt"
	"net/url"
	"strings"

	"goodnoodle/internal/models"

	"github.com/slack-go/slack"
)

// Slack rejects section text longer than this.
const maxSectionText = 3000

var DefaultBotScopes = []string{
	"chat:write",
	"reactions:write",
	"users.profile:read",
	"groups:history",
	"im:history",
	"mpim:history",
	"channels:history",
}

func authorizeURL(clientID, redirectURL, state string, scopes []string) string {
	v := url.Values{}
	v.Set("client_id", clientID)
	v.Set("scope", strings.Join(scopes, ","))
	v.Set("state", state)
	if redirectURL != "" {
		v.Set("redirect_uri", redirectURL)
	}
	return "https://slack.com/oauth/v2/authorize?" + v.Encode()
}

// RenderHome lays out the home tab for one viewer.
func RenderHome(d *models.Dashboard) []slack.Block {
	viewerID := ""
	received, given := 0, 0
	if d.Viewer != nil {
		viewerID = d.Viewer.SlackUserID
		received, given = d.Viewer.TokensReceived, d.Viewer.TokensSent
	}

	blocks := []slack.Block{
		markdown(fmt.Sprintf("*Welcome, <@%s> :house:*", viewerID)),
		slack.NewHeaderBlock(slack.NewTextBlockObject(slack.PlainTextType, "My Noodles", false, false)),
		slack.NewDividerBlock(),
		markdown(fmt.Sprintf("Received: %d %s\n\nGiven: %d %s\n\nLeft to Give this week: %d %s",
			received, d.Marker, given, d.Marker, d.Remaining, d.Marker)),
		slack.NewHeaderBlock(slack.NewTextBlockObject(slack.PlainTextType, "Noodle Received Leaderboard", false, false)),
		slack.NewDividerBlock(),
	}

	lines := make([]string, 0, len(d.Leaderboard))
	for _, row := range d.Leaderboard {
		lines = append(lines, LeaderboardLine(row, d.Marker))
	}
	for _, text := range splitSections(lines, "\n\n", maxSectionText) {
		blocks = append(blocks, markdown(text))
	}
	return blocks
}

// LeaderboardLine renders one ranked user as "*<rank>.) <@id>:* <markers> (n)".
func LeaderboardLine(row models.LeaderboardRow, marker string) string {
	n := row.User.TokensReceived
	return fmt.Sprintf("*%d.) <@%s>:* %s (%d)", row.Rank, row.User.SlackUserID, strings.Repeat(marker, max(n, 0)), n)
}

func markdown(text string) slack.Block {
	return slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, text, false, false), nil, nil)
}

// splitSections joins lines with sep into chunks no longer than limit.
// A single line over the limit is truncated.
func splitSections(lines []string, sep string, limit int) []string {
	var out []string
	var cur strings.Builder
	for _, line := range lines {
		if len(line) > limit {
			line = line[:limit]
		}
		if cur.Len() > 0 && cur.Len()+len(sep)+len(line) > limit {
			out = append(out, cur.String())
			cur.Reset()
		}
		if cur.Len() > 0 {
			cur.WriteString(sep)
		}
		cur.WriteString(line)
	}
	if cur.Len() > 0 {
		out = append(out, cur.String())
	}
	return out
}
