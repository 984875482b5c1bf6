package access

import "github.com/bwmarrin/discordgo"

type Kind int

const (
	KindOther Kind = iota
	KindText
	KindVoice
	KindCategory
)

type Capabilities struct {
	Messaging bool
	Voice     bool
}

func KindOf(channel *discordgo.Channel) Kind {
	if channel == nil {
		return KindOther
	}
	switch channel.Type {
	case discordgo.ChannelTypeGuildText, discordgo.ChannelTypeGuildNews, discordgo.ChannelTypeGuildForum:
		return KindText
	case discordgo.ChannelTypeGuildVoice, discordgo.ChannelTypeGuildStageVoice:
		return KindVoice
	case discordgo.ChannelTypeGuildCategory:
		return KindCategory
	default:
		return KindOther
	}
}

func (k Kind) Capabilities() Capabilities {
	switch k {
	case KindText:
		return Capabilities{Messaging: true}
	case KindVoice:
		return Capabilities{Voice: true}
	default:
		return Capabilities{}
	}
}

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindVoice:
		return "voice"
	case KindCategory:
		return "category"
	default:
		return "other"
	}
}
