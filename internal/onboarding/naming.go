package onboarding

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

const maxChannelName = 100

// ChannelName is the welcome channel name for a username, folded the way
// Discord stores text channel names.
func ChannelName(prefix, username string) string {
	name := norm.NFC.String(prefix + username)
	name = cases.Lower(language.Und).String(name)
	name = strings.Join(strings.Fields(name), "-")
	if runes := []rune(name); len(runes) > maxChannelName {
		name = string(runes[:maxChannelName])
	}
	return name
}
