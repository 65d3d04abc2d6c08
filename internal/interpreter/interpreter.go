// Package interpreter extracts gifting intent from chat message text.
package interpreter

import (
	"regexp"
	"strings"
)

// DefaultMarker is the emoji code that represents one recognition token.
const DefaultMarker = ":good-noodle:"

var (
	mentionDetection = regexp.MustCompile(`<@(.*)>`)
	// Platform user ids in mentions are 11 characters long. A label after | is not part of a plain mention.
	mentionID = regexp.MustCompile(`<@([^>|]{11})>`)
)

// Interpreter is stateless apart from the configured token marker.
type Interpreter struct {
	marker string
}

func New(marker string) *Interpreter {
	if marker == "" {
		marker = DefaultMarker
	}
	return &Interpreter{marker: marker}
}

func (i *Interpreter) Marker() string { return i.marker }

// ContainsMention reports whether text holds at least one mention token.
func (i *Interpreter) ContainsMention(text string) bool {
	return mentionDetection.MatchString(text)
}

// ExtractMentionedUsers returns every mentioned user id in order of appearance.
// Repeated mentions are kept; the exclude ids (the author, the bot) are dropped.
func (i *Interpreter) ExtractMentionedUsers(text string, exclude ...string) []string {
	matches := mentionID.FindAllStringSubmatch(text, -1)
	ids := make([]string, 0, len(matches))
	for _, m := range matches {
		if contains(exclude, m[1]) {
			continue
		}
		ids = append(ids, m[1])
	}
	return ids
}

// CountTokenMarkers returns how many tokens each recipient receives.
func (i *Interpreter) CountTokenMarkers(text string) int {
	return strings.Count(text, i.marker)
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s != "" && s == v {
			return true
		}
	}
	return false
}
