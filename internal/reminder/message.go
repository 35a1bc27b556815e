package reminder

import "fmt"

const (
	// smsMaxChars is the hard size constraint of the SMS channel.
	smsMaxChars = 160
	smsEllipsis = "..."
)

// FormatMessage renders the fixed notification body. The format is part of
// the external contract; channels must not vary it beyond SMS truncation.
// The title is quoted literally, never escaped.
func FormatMessage(title, dueDate, dueTime string) string {
	return fmt.Sprintf(`Reminder: Your task "%s" is due on %s at %s.`, title, dueDate, dueTime)
}

// TruncateSMS enforces the 160-character SMS limit, replacing the tail with an
// ellipsis marker when the body is too long. Counted in runes so multibyte
// titles don't split mid-character.
func TruncateSMS(body string) string {
	r := []rune(body)
	if len(r) <= smsMaxChars {
		return body
	}
	return string(r[:smsMaxChars-len(smsEllipsis)]) + smsEllipsis
}
