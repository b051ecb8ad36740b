package services

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/ad/go-telegram-puzzle/internal/models"
)

const (
	MaxNicknameLength = 6
	MaxBioLength      = 500
	MinAge            = 18
	MaxAge            = 100
)

var (
	nicknamePattern = regexp.MustCompile(`^[가-힣]{1,6}$`)
	bioPattern      = regexp.MustCompile(`^[a-zA-Z가-힣\s]*$`)
)

// InterestCategory groups the interests offered on one keyboard page.
type InterestCategory struct {
	Name  string
	Items []string
}

// InterestCatalog is the fixed list users pick their interests from.
var InterestCatalog = []InterestCategory{
	{Name: "Sports", Items: []string{"Gym", "Running", "Swimming", "Football", "Basketball", "Golf"}},
	{Name: "Culture", Items: []string{"Movies", "Travel", "Musicals", "Exhibitions", "Concerts"}},
	{Name: "Music", Items: []string{"K-POP", "Pop", "Classical", "Jazz", "Indie"}},
	{Name: "Food", Items: []string{"Restaurants", "Cooking", "Baking", "Coffee", "Wine"}},
	{Name: "Self-development", Items: []string{"Reading", "Languages", "Coding", "Study"}},
}

// ValidateNickname accepts 1 to 6 precomposed Hangul syllables.
func ValidateNickname(nickname string) error {
	if !nicknamePattern.MatchString(nickname) {
		return fmt.Errorf("%w: nickname must be 1 to %d Korean characters", models.ErrInvalidArgument, MaxNicknameLength)
	}
	return nil
}

// ValidateBio accepts Latin letters, Hangul and whitespace only.
func ValidateBio(bio string) error {
	if utf8.RuneCountInString(bio) > MaxBioLength {
		return fmt.Errorf("%w: bio is longer than %d characters", models.ErrInvalidArgument, MaxBioLength)
	}
	if !bioPattern.MatchString(bio) {
		return fmt.Errorf("%w: bio may contain only Korean or English letters and spaces", models.ErrInvalidArgument)
	}
	return nil
}

// ParseAge reads a whole number of years within the allowed range.
func ParseAge(text string) (int, error) {
	age, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil {
		return 0, fmt.Errorf("%w: age must be a number", models.ErrInvalidArgument)
	}
	if age < MinAge || age > MaxAge {
		return 0, fmt.Errorf("%w: age must be between %d and %d", models.ErrInvalidArgument, MinAge, MaxAge)
	}
	return age, nil
}

// InterestAt resolves a catalog position, as carried in callback data.
func InterestAt(category, item int) (string, bool) {
	if category < 0 || category >= len(InterestCatalog) {
		return "", false
	}
	items := InterestCatalog[category].Items
	if item < 0 || item >= len(items) {
		return "", false
	}
	return items[item], true
}

// ToggleInterest adds interest when absent and removes it when present.
// Order of the remaining interests is kept.
func ToggleInterest(interests []string, interest string) []string {
	out := make([]string, 0, len(interests)+1)
	found := false
	for _, i := range interests {
		if i == interest {
			found = true
			continue
		}
		out = append(out, i)
	}
	if !found {
		out = append(out, interest)
	}
	return out
}
