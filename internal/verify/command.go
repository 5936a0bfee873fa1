package verify

import "strings"

// Command is the chat command that redeems a challenge.
const Command = "!verify"

// ParseCommand reports whether content is a verification command and
// returns the submitted code, which may be empty. Content with anything
// after the code is an ordinary message.
func ParseCommand(content string) (code string, ok bool) {
	fields := strings.Fields(content)
	if len(fields) == 0 || len(fields) > 2 || !strings.EqualFold(fields[0], Command) {
		return "", false
	}
	if len(fields) == 2 {
		code = fields[1]
	}
	return code, true
}
