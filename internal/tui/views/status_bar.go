package views

import (
	"fmt"
	"strings"
	"time"

	"github.com/matheus3301/chatlist/internal/tui/ui"
	"github.com/rivo/tview"
)

// StatusBar displays persistent session status and key hints.
type StatusBar struct {
	*tview.TextView
	theme   *ui.Theme
	session string
	status  string
	user    string
	unread  int
	hints   []string
	flash   string
	isErr   bool
}

// NewStatusBar creates a new status bar.
func NewStatusBar(theme *ui.Theme) *StatusBar {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(theme.StatusBarBg)

	return &StatusBar{TextView: tv, theme: theme}
}

// SetSession updates the session name display.
func (sb *StatusBar) SetSession(name string) {
	sb.session = name
	sb.render()
}

// SetStatus updates the session state and signed-in user.
func (sb *StatusBar) SetStatus(status, user string) {
	sb.status = status
	sb.user = user
	sb.render()
}

// SetUnread updates the number of unread groups.
func (sb *StatusBar) SetUnread(n int) {
	sb.unread = n
	sb.render()
}

// SetHints updates the key hints.
func (sb *StatusBar) SetHints(hints []string) {
	sb.hints = hints
	sb.render()
}

// SetFlash sets a temporary message.
func (sb *StatusBar) SetFlash(msg string, isErr bool) {
	sb.flash = msg
	sb.isErr = isErr
	sb.render()
}

func (sb *StatusBar) render() {
	sb.Clear()

	user := sb.user
	if user == "" {
		user = "-"
	}
	clock := time.Now().Format("15:04")

	line := fmt.Sprintf(" [::b]%s[-:-:-] | %s | %s | unread %d | %s", sb.session, sb.status, user, sb.unread, clock)
	if len(sb.hints) > 0 {
		line += " | " + strings.Join(sb.hints, " ")
	}
	if sb.flash != "" {
		color := sb.theme.FlashInfoColor
		if sb.isErr {
			color = sb.theme.FlashErrColor
		}
		line += fmt.Sprintf(" | [%s]%s[-]", ui.ColorTag(color), tview.Escape(sb.flash))
	}

	_, _ = fmt.Fprint(sb, line)
}
