package bot

import (
	"strconv"
	"strings"
)

// Command is one parsed operator command.
type Command struct {
	Name    string // start, stop, show, list, del, help; empty for bare prefix
	Title   string
	Targets []string
	Page    int
	Num     int
	Topic   string // help topic
}

// ParseCommand reports whether text is an operator command under prefix and
// decodes its arguments. Page/Num default to 0/10. Target mentions are
// "@login" arguments, normalized to lowercase logins.
func ParseCommand(prefix, text string) (Command, bool) {
	fields := strings.Fields(strings.TrimSpace(text))
	if len(fields) == 0 || !strings.EqualFold(fields[0], prefix) {
		return Command{}, false
	}
	cmd := Command{Num: 10}
	args := fields[1:]
	if len(args) == 0 {
		return cmd, true
	}
	cmd.Name = strings.ToLower(args[0])
	args = args[1:]

	switch cmd.Name {
	case "start":
		// Optional title followed by optional @mentions. A leading mention
		// means no title was given.
		if len(args) > 0 && !isMention(args[0]) {
			cmd.Title = args[0]
			args = args[1:]
		}
		for _, a := range args {
			if isMention(a) {
				cmd.Targets = append(cmd.Targets, mentionLogin(a))
			}
		}
	case "stop", "show", "del":
		if len(args) > 0 {
			cmd.Title = args[0]
		}
	case "list":
		if len(args) > 0 {
			if n, err := strconv.Atoi(args[0]); err == nil && n >= 0 {
				cmd.Page = n
			}
		}
		if len(args) > 1 {
			if n, err := strconv.Atoi(args[1]); err == nil && n > 0 {
				cmd.Num = n
			}
		}
	case "help":
		if len(args) > 0 {
			cmd.Topic = strings.ToLower(args[0])
		}
	}
	return cmd, true
}

func isMention(s string) bool { return strings.HasPrefix(s, "@") && len(s) > 1 }

func mentionLogin(s string) string {
	return strings.ToLower(strings.TrimPrefix(s, "@"))
}
