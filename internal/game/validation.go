package game

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	MaxNicknameLength       = 20
	MaxPromptLength         = 500
	MaxGuessLength          = 200
	MaxEmojiLength          = 100
	MaxInterpretationLength = 500
	MaxStatementLength      = 200
	MaxChatLength           = 500
	StatementCount          = 3
)

// CleanText trims text and checks it is between 1 and maxLen characters.
func CleanText(label, text string, maxLen int) (string, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", Invalid(label + " is required")
	}
	if utf8.RuneCountInString(trimmed) > maxLen {
		return "", Invalid(fmt.Sprintf("%s must be %d characters or fewer", label, maxLen))
	}
	return trimmed, nil
}

// CleanNickname collapses inner whitespace before checking length.
func CleanNickname(nickname string) (string, error) {
	return CleanText("nickname", strings.Join(strings.Fields(nickname), " "), MaxNicknameLength)
}
