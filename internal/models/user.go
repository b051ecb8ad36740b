package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type User struct {
	ID          int64
	FirstName   string
	LastName    string
	Username    string
	Nickname    string
	Age         int
	Bio         string
	Interests   []string
	PhotoFileID string
	IsBlocked   bool
	CreatedAt   time.Time
}

func (u *User) DisplayName() string {
	var parts []string
	if u.FirstName != "" {
		parts = append(parts, u.FirstName)
	}
	if u.LastName != "" {
		parts = append(parts, u.LastName)
	}
	if u.Username != "" {
		parts = append(parts, fmt.Sprintf("@%s", u.Username))
	}
	parts = append(parts, fmt.Sprintf("[%d]", u.ID))
	return strings.Join(parts, " ")
}

// HasPhoto reports whether the user can take part in matching.
func (u *User) HasPhoto() bool {
	return u.PhotoFileID != ""
}

// PublicName is what a match sees: the nickname when set, else the first name.
func (u *User) PublicName() string {
	if u.Nickname != "" {
		return u.Nickname
	}
	return u.FirstName
}

// HasRequiredProfile reports whether nickname and age are filled in.
func (u *User) HasRequiredProfile() bool {
	return u.Nickname != "" && u.Age > 0
}

// ParticipantID is the identifier used for the user inside conversations.
func (u *User) ParticipantID() string {
	return strconv.FormatInt(u.ID, 10)
}
