package views

import (
	"fmt"

	"github.com/matheus3301/chatlist/internal/tui/ui"
	"github.com/rivo/tview"
)

// HelpView displays key binding reference.
type HelpView struct {
	*tview.TextView
	theme *ui.Theme
}

// NewHelpView creates a new help view.
func NewHelpView(theme *ui.Theme) *HelpView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitle(" Help ")
	tv.SetTitleColor(theme.TitleColor)

	hv := &HelpView{
		TextView: tv,
		theme:    theme,
	}
	hv.render()
	return hv
}

func (hv *HelpView) render() {
	kc := ui.ColorTag(hv.theme.BorderColor)

	help := fmt.Sprintf(`
  [::b]Keys[-:-:-]

  [%[1]s]Enter[-:-:-]  Open group (marks it read, starts a message)
  [%[1]s]r[-:-:-]      Mark selected group read
  [%[1]s]/[-:-:-]      Filter groups by name
  [%[1]s]:[-:-:-]      Command mode
  [%[1]s]?[-:-:-]      Help
  [%[1]s]Esc[-:-:-]    Cancel / Go back
  [%[1]s]q[-:-:-]      Quit

  [::b]Commands (: mode)[-:-:-]

  [%[1]s]:signin <user-id> [name][-:-:-]     Sign in
  [%[1]s]:signout[-:-:-]                     Sign out and clear the list
  [%[1]s]:create <name> [member...][-:-:-]   Create a group with you in it
  [%[1]s]:help[-:-:-] / [%[1]s]:h[-:-:-]                  Show this help
  [%[1]s]:quit[-:-:-] / [%[1]s]:q[-:-:-]                  Quit application
`, kc)

	_, _ = fmt.Fprint(hv, help)
}
