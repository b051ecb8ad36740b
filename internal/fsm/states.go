package fsm

const (
	StateIdle             = ""
	StateAwaitingNickname = "awaiting_nickname"
	StateAwaitingAge      = "awaiting_age"
	StateAwaitingBio      = "awaiting_bio"
	// Text sent in this state is answered with a photo reminder.
	StateAwaitingPhoto = "awaiting_photo"
)
