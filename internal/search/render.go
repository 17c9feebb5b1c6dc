package search

import (
	"fmt"
	"strings"
)

// renderSession formats the session's current page as the channel message
// shown to the searching user.
func renderSession(s *Session) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Results for %q (page %d/%d)\n", s.Query, s.Page, s.Pages())

	start := (s.Page - 1) * pageSize
	for i := 0; i < s.rowsOnPage(s.Page); i++ {
		card := s.Results[start+i]
		cursor := "  "
		if i+1 == s.Row {
			cursor = "> "
		}
		fmt.Fprintf(&b, "%s%2d. %s", cursor, i+1, card.Name)
		if card.Tagline != "" {
			fmt.Fprintf(&b, " - %s", card.Tagline)
		}
		b.WriteString("\n")
	}

	b.WriteString("\nNavigate with the buttons below, then press select to spawn.")
	return b.String()
}
