package bot

import (
	"strconv"

	"github.com/bwmarrin/discordgo"
	"golang.org/x/oauth2"
)

const authorizeURL = "https://discord.com/oauth2/authorize"

// RequiredPermissions are the guild permissions onboarding relies on.
const RequiredPermissions = discordgo.PermissionManageChannels |
	discordgo.PermissionManageRoles |
	discordgo.PermissionManageNicknames |
	discordgo.PermissionKickMembers |
	discordgo.PermissionViewChannel |
	discordgo.PermissionSendMessages |
	discordgo.PermissionReadMessageHistory

// InviteURL builds the authorize link that adds the bot to a guild with the
// permissions it needs. It returns "" without an application id.
func InviteURL(applicationID string) string {
	if applicationID == "" {
		return ""
	}
	conf := &oauth2.Config{
		ClientID: applicationID,
		Endpoint: oauth2.Endpoint{AuthURL: authorizeURL},
		Scopes:   []string{"bot", "applications.commands"},
	}
	return conf.AuthCodeURL("",
		oauth2.SetAuthURLParam("permissions", strconv.FormatInt(RequiredPermissions, 10)),
	)
}
