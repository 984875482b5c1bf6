package onboarding

type State int

const (
	Ignored State = iota
	Joined
	CategoryEnsured
	ChannelCreated
	FirstNoticePosted
	SecondNoticePosted
	ActivityMonitoring
	Completed
	Kicked
	KickFailed
	Suppressed
	Aborted
	Failed
)

var stateNames = map[State]string{
	Ignored:            "ignored",
	Joined:             "joined",
	CategoryEnsured:    "category_ensured",
	ChannelCreated:     "channel_created",
	FirstNoticePosted:  "first_notice_posted",
	SecondNoticePosted: "second_notice_posted",
	ActivityMonitoring: "activity_monitoring",
	Completed:          "completed",
	Kicked:             "kicked",
	KickFailed:         "kick_failed",
	Suppressed:         "suppressed",
	Aborted:            "aborted",
	Failed:             "failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}
