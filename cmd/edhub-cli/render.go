package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/edhub/edhub/pkg/edclient"
)

// iconGlyphs maps presentation icons to terminal glyphs.
var iconGlyphs = map[string]string{
	"user":           "@",
	"activity":       "~",
	"alert-triangle": "!",
	"bell":           "*",
	"check-check":    "+",
	"clipboard":      "#",
	"pill":           "%",
	"stethoscope":    "&",
}

func glyph(icon string) string {
	if g, ok := iconGlyphs[icon]; ok {
		return g
	}
	return "*"
}

// notificationLine renders one inbox entry.
func notificationLine(n edclient.Notification, now time.Time) string {
	p := edclient.Present(n.Type)
	marker := " "
	if !n.IsRead {
		marker = "•"
	}
	line := fmt.Sprintf("%s %s %s: %s (%s)", marker, glyph(p.Icon), p.Title, n.Message, edclient.TimeAgo(n.CreatedAt, now))
	if target, ok := edclient.NavigationTarget(n); ok {
		line += " -> " + target
	}
	return line
}

func renderInbox(w io.Writer, snap edclient.Snapshot, now time.Time) {
	fmt.Fprintf(w, "Notifications (%d unread)\n", snap.UnreadCount)
	if len(snap.Notifications) == 0 {
		fmt.Fprintln(w, "  No notifications")
		return
	}
	for _, n := range snap.Notifications {
		fmt.Fprintln(w, notificationLine(n, now))
	}
}

func renderTriage(w io.Writer, rows []edclient.TriageRow) error {
	if len(rows) == 0 {
		_, err := fmt.Fprintln(w, "No emergency patients")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PRIORITY\tPATIENT\tLEVEL\tSTATUS\tSYMPTOMS")
	for _, r := range rows {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n",
			r.Priority,
			r.Patient.FullName(),
			strings.ToUpper(r.DisplayStatus),
			r.Patient.Status,
			truncate(r.Patient.Symptoms, 40),
		)
	}
	return tw.Flush()
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
