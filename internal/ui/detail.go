package ui

import (
	"fmt"
	"strconv"

	"github.com/gravitrone/tdome/internal/api"
	"github.com/gravitrone/tdome/internal/store"
	"github.com/gravitrone/tdome/internal/ui/components"
)

// renderTalkDetail shows a talk's fields, where it sits, and the opaque
// attributes the server sent with it.
func renderTalkDetail(st *store.Store, t api.Talk, selected bool, width int) string {
	placement := "ungrouped"
	if key, ok := st.Owner(t.ID); ok {
		if g, ok := st.Group(key); ok {
			placement = g.Name
			if !g.Pending() {
				placement = fmt.Sprintf("#%d %s", g.Number, g.Name)
			}
		}
	}
	sel := "no"
	if selected {
		sel = "yes"
	}

	out := components.Table("Talk", []components.TableRow{
		{Label: "ID", Value: strconv.Itoa(t.ID)},
		{Label: "Title", Value: t.Title},
		{Label: "Group", Value: placement},
		{Label: "Selected", Value: sel},
	}, width)
	if attrs := components.AttributesTable("Attributes", t.Attrs, width); attrs != "" {
		out += "\n" + attrs
	}
	return out + "\n" + MutedStyle.Render("esc: close | space: toggle selection")
}
