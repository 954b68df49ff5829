package chat

import (
	"fmt"
	"unicode/utf8"
)

const (
	MaxContentBytes = 8192 // max encoded size of a message body
	MaxContentChars = 2000 // max character count
)

// ValidateContent checks that message text meets content requirements.
// Empty text is allowed here: attachment-only messages carry no content,
// so the empty-draft rule belongs to the composer.
func ValidateContent(text string) error {
	if len(text) > MaxContentBytes {
		return fmt.Errorf("message exceeds %d byte limit", MaxContentBytes)
	}
	if utf8.RuneCountInString(text) > MaxContentChars {
		return fmt.Errorf("message exceeds %d character limit", MaxContentChars)
	}
	if !utf8.ValidString(text) {
		return fmt.Errorf("message contains invalid UTF-8")
	}
	return nil
}
