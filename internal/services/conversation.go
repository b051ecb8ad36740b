package services

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ad/go-telegram-puzzle/internal/models"
)

// ConversationSeparator joins the two participant ids of a conversation id.
const ConversationSeparator = "_"

// ConversationID returns the id shared by a and b regardless of who starts
// the conversation.
func ConversationID(a, b string) string {
	ids := []string{a, b}
	sort.Strings(ids)
	return strings.Join(ids, ConversationSeparator)
}

// PartnerOf returns the other participant of conversationID, or
// ErrInvalidArgument when participantID is not part of it.
func PartnerOf(conversationID, participantID string) (string, error) {
	if participantID == "" || conversationID == "" {
		return "", fmt.Errorf("%w: empty conversation or participant id", models.ErrInvalidArgument)
	}
	if rest, ok := strings.CutPrefix(conversationID, participantID+ConversationSeparator); ok && ConversationID(participantID, rest) == conversationID {
		return rest, nil
	}
	if rest, ok := strings.CutSuffix(conversationID, ConversationSeparator+participantID); ok && ConversationID(rest, participantID) == conversationID {
		return rest, nil
	}
	return "", fmt.Errorf("%w: %q is not a participant of conversation %q", models.ErrInvalidArgument, participantID, conversationID)
}
