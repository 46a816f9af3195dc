package client

import (
	"strings"

	"github.com/andy6609/tickchat/internal/protocol"
)

// Line is one rendered row of chat history. Notices are server or presence
// messages and are drawn dimmed.
type Line struct {
	Text   string
	Notice bool
}

// Format renders ev for the history pane. Events a user has no reason to see
// report false.
func Format(ev protocol.Event) (Line, bool) {
	text := ev.Text()
	switch ev.Code {
	case protocol.CodeMessage:
		return Line{Text: text}, true
	case protocol.CodeUsernameRequest, protocol.CodeUsernameAccepted,
		protocol.CodeServerShutdown, protocol.CodeConnectionFailed:
		return notice(text), true
	case protocol.CodeUsernameRejected:
		return notice("username rejected: " + text), true
	case protocol.CodeOversizedContent:
		return notice("message too long, not sent"), true
	case protocol.CodeUserJoin:
		return notice(text + " joined"), true
	case protocol.CodeUserLeave:
		return notice(text + " left"), true
	case protocol.CodeUserList:
		names := protocol.DecodeUserList(ev.Content)
		if len(names) == 0 {
			return Line{}, false
		}
		return notice("online: " + strings.Join(names, ", ")), true
	default:
		return Line{}, false
	}
}

func notice(text string) Line {
	return Line{Text: "# " + text, Notice: true}
}
