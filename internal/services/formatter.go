package services

import (
	"fmt"
	"strings"
	"time"

	"github.com/ad/go-telegram-puzzle/internal/models"
)

// FormatChatLine prefixes a relayed message with its author's public name.
func FormatChatLine(from *models.User, text string) string {
	name := from.PublicName()
	if name == "" {
		name = "Your match"
	}
	return fmt.Sprintf("💬 %s: %s", name, text)
}

// FormatProfile renders a user's own profile card, pointing at missing fields.
func FormatProfile(u *models.User) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("👤 %s\n", u.DisplayName()))
	if u.Nickname != "" {
		sb.WriteString(fmt.Sprintf("🏷 Nickname: %s\n", u.Nickname))
	} else {
		sb.WriteString("🏷 No nickname yet. Use /nickname to set one.\n")
	}
	if u.Age > 0 {
		sb.WriteString(fmt.Sprintf("🎂 Age: %d\n", u.Age))
	} else {
		sb.WriteString("🎂 No age yet. Use /age to set it.\n")
	}
	if u.Bio != "" {
		sb.WriteString(fmt.Sprintf("📝 %s\n", u.Bio))
	} else {
		sb.WriteString("📝 No bio yet. Use /bio to add one.\n")
	}
	if len(u.Interests) > 0 {
		sb.WriteString(fmt.Sprintf("✨ Interests: %s\n", strings.Join(u.Interests, ", ")))
	} else {
		sb.WriteString("✨ No interests yet. Use /interests to pick some.\n")
	}
	if u.HasPhoto() {
		sb.WriteString("📷 Photo set")
	} else {
		sb.WriteString("📷 No photo yet. Send one to join matching.")
	}
	return sb.String()
}

// FormatMatchCard is what a user learns about today's partner before the
// photo is revealed.
func FormatMatchCard(partner *models.User) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("💘 Today's match: %s", partner.PublicName()))
	if partner.Age > 0 {
		sb.WriteString(fmt.Sprintf(", %d", partner.Age))
	}
	if partner.Bio != "" {
		sb.WriteString("\n📝 " + partner.Bio)
	}
	if len(partner.Interests) > 0 {
		sb.WriteString("\n✨ " + strings.Join(partner.Interests, ", "))
	}
	sb.WriteString("\n\nJust type a message to start chatting.")
	return sb.String()
}

// FormatHistory renders messages oldest first from viewerID's perspective.
func FormatHistory(messages []*models.ChatMessage, viewerID int64, partner *models.User) string {
	if len(messages) == 0 {
		return "No messages yet. Say hi!"
	}
	var lines []string
	for _, m := range messages {
		who := "You"
		if m.SenderID != viewerID {
			who = partner.PublicName()
			if who == "" {
				who = "Match"
			}
		}
		lines = append(lines, fmt.Sprintf("[%s] %s: %s", m.CreatedAt.UTC().Format("15:04"), who, m.Text))
	}
	return strings.Join(lines, "\n")
}

// FormatTimeUntilNextDay describes how long until the next UTC day starts.
func FormatTimeUntilNextDay(now time.Time) string {
	now = now.UTC()
	next := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)
	d := next.Sub(now)
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}
