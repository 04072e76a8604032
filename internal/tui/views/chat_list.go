package views

import (
	"fmt"
	"strconv"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/chatlist/internal/chatlist"
	"github.com/matheus3301/chatlist/internal/tui/ui"
	"github.com/rivo/tview"
)

const previewRunes = 48

// ChatList is the main chat list view (K9s-inspired table).
type ChatList struct {
	*tview.Table
	theme   *ui.Theme
	entries []chatlist.Entry
}

// NewChatList creates a new chat list table.
func NewChatList(theme *ui.Theme) *ChatList {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false).
		SetFixed(1, 0)
	table.SetBorder(true).SetTitle(" Chats ")
	table.SetBorderColor(theme.BorderColor)
	table.SetTitleColor(theme.TitleColor)
	table.SetBackgroundColor(theme.BgColor)
	table.SetSelectedStyle(tcell.StyleDefault.Foreground(theme.TableCursorFg).Background(theme.TableCursorBg))

	return &ChatList{Table: table, theme: theme}
}

// Update redraws the table from entries, keeping the selected group selected
// when it is still present.
func (cl *ChatList) Update(entries []chatlist.Entry) {
	selected := cl.SelectedGroup()
	cl.entries = entries
	cl.Clear()

	header := func(col int, text string) {
		cl.SetCell(0, col, tview.NewTableCell(text).SetSelectable(false).SetTextColor(cl.theme.TableHeaderFg))
	}
	header(0, " Group")
	header(1, " Last Message")
	header(2, " Time")
	header(3, " Unread")

	for i, e := range entries {
		row := i + 1
		color := cl.theme.FgColor
		if e.Unread() {
			color = cl.theme.UnreadColor
		}
		unread := ""
		if e.Unread() {
			unread = strconv.Itoa(e.UnreadCount)
		}

		cl.SetCell(row, 0, tview.NewTableCell(" "+sanitizeForTerminal(e.GroupName)).SetMaxWidth(30).SetExpansion(1).SetTextColor(color))
		cl.SetCell(row, 1, tview.NewTableCell(" "+previewLine(e)).SetMaxWidth(previewRunes+2).SetExpansion(2).SetTextColor(color))
		cl.SetCell(row, 2, tview.NewTableCell(" "+formatTimestamp(e.LastMessageAt)).SetMaxWidth(12).SetTextColor(color))
		cl.SetCell(row, 3, tview.NewTableCell(" "+unread).SetAlign(tview.AlignRight).SetTextColor(color))
	}

	cl.SetTitle(fmt.Sprintf(" Chats [%d] ", len(entries)))
	for i, e := range entries {
		if e.GroupID == selected {
			cl.Select(i+1, 0)
			return
		}
	}
	if len(entries) > 0 {
		cl.Select(1, 0)
	}
}

// SelectedGroup returns the id of the selected group, or "" when none is.
func (cl *ChatList) SelectedGroup() string {
	if e, ok := cl.SelectedEntry(); ok {
		return e.GroupID
	}
	return ""
}

// SelectedEntry returns the selected entry.
func (cl *ChatList) SelectedEntry() (chatlist.Entry, bool) {
	row, _ := cl.GetSelection()
	idx := row - 1 // account for header
	if idx >= 0 && idx < len(cl.entries) {
		return cl.entries[idx], true
	}
	return chatlist.Entry{}, false
}

func previewLine(e chatlist.Entry) string {
	if e.LastMessageText == "" {
		return ""
	}
	if e.LastMessageSender == "" {
		return preview(e.LastMessageText, previewRunes)
	}
	return preview(e.LastMessageSender+": "+e.LastMessageText, previewRunes)
}

func formatTimestamp(ms int64) string {
	if ms <= 0 {
		return ""
	}
	t := time.UnixMilli(ms)
	now := time.Now()
	if t.Year() == now.Year() && t.YearDay() == now.YearDay() {
		return t.Format("15:04")
	}
	return t.Format("01/02")
}
