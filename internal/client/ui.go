package client

import (
	"context"
	"log/slog"

	"github.com/gdamore/tcell/v2"
	"github.com/mattn/go-runewidth"
)

const prompt = "> "

var (
	messageStyle = tcell.StyleDefault
	noticeStyle  = tcell.StyleDefault.Dim(true).Italic(true)
	ruleStyle    = tcell.StyleDefault.Dim(true)
)

// UI draws the chat history above a one line input field and forwards what
// the user types to the session.
type UI struct {
	screen  tcell.Screen
	session *Session
	logger  *slog.Logger

	history []Line
	input   Input
}

// NewUI expects an initialised screen; the caller owns Fini.
func NewUI(screen tcell.Screen, session *Session, logger *slog.Logger) *UI {
	if logger == nil {
		logger = slog.Default()
	}
	return &UI{screen: screen, session: session, logger: logger}
}

// Run handles keys and server events until the user quits with Ctrl-C or
// Esc, the context ends or the server goes away. Quitting sends a leave
// notice first.
func (u *UI) Run(ctx context.Context) error {
	keys := make(chan tcell.Event, 16)
	quit := make(chan struct{})
	defer close(quit)
	go u.screen.ChannelEvents(keys, quit)

	u.draw()
	incoming := u.session.Events()
	for {
		select {
		case <-ctx.Done():
			u.leave()
			return ctx.Err()

		case ev, ok := <-incoming:
			if !ok {
				err := u.session.Err()
				if err == nil {
					err = ErrConnectionLost
				}
				u.append(notice(err.Error()))
				u.draw()
				return err
			}
			if line, show := Format(ev); show {
				u.append(line)
				u.draw()
			}

		case tev, ok := <-keys:
			if !ok {
				u.leave()
				return nil
			}
			switch tev := tev.(type) {
			case *tcell.EventResize:
				u.screen.Sync()
				u.draw()
			case *tcell.EventKey:
				if u.handleKey(tev) {
					u.leave()
					return nil
				}
				u.draw()
			}
		}
	}
}

// handleKey reports true when the key asks to quit.
func (u *UI) handleKey(ev *tcell.EventKey) bool {
	switch ev.Key() {
	case tcell.KeyCtrlC, tcell.KeyEscape:
		return true
	case tcell.KeyEnter:
		line, ok := u.input.Submit()
		if !ok {
			return false
		}
		u.append(Line{Text: prompt + line})
		if err := u.session.Submit(line); err != nil {
			u.logger.Warn("send failed", "error", err)
			u.append(notice("send failed: " + err.Error()))
		}
	case tcell.KeyBackspace, tcell.KeyBackspace2:
		u.input.Backspace()
	case tcell.KeyRune:
		u.input.Insert(ev.Rune())
	}
	return false
}

func (u *UI) leave() {
	if err := u.session.Leave(); err != nil {
		u.logger.Debug("leave", "error", err)
	}
}

func (u *UI) append(l Line) {
	u.history = append(u.history, l)
}

// History returns the rendered lines so far.
func (u *UI) History() []Line {
	return append([]Line(nil), u.history...)
}

func (u *UI) draw() {
	s := u.screen
	s.Clear()
	w, h := s.Size()
	if h < 3 {
		s.Show()
		return
	}

	rows := h - 2
	start := 0
	if len(u.history) > rows {
		start = len(u.history) - rows
	}
	for y, l := range u.history[start:] {
		style := messageStyle
		if l.Notice {
			style = noticeStyle
		}
		drawText(s, 0, y, w, l.Text, style)
	}

	for x := 0; x < w; x++ {
		s.SetContent(x, h-2, tcell.RuneHLine, nil, ruleStyle)
	}
	end := drawText(s, 0, h-1, w, prompt+u.input.String(), messageStyle)
	s.ShowCursor(end, h-1)
	s.Show()
}

// drawText writes text from column x, clipped at width, and returns the
// column after the last cell written.
func drawText(s tcell.Screen, x, y, width int, text string, style tcell.Style) int {
	for _, r := range text {
		rw := runewidth.RuneWidth(r)
		if rw == 0 {
			continue
		}
		if x+rw > width {
			break
		}
		s.SetContent(x, y, r, nil, style)
		x += rw
	}
	return x
}
