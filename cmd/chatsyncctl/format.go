package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/facilitydesk/chatsync/internal/api"
	"github.com/facilitydesk/chatsync/internal/index"
)

func printState(w io.Writer, st api.State) {
	active := st.ActiveID
	if active == "" {
		active = "-"
	}
	fmt.Fprintf(w, "Profile:       %s\n", st.Profile)
	fmt.Fprintf(w, "Self:          %s\n", st.SelfID)
	fmt.Fprintf(w, "State:         %s\n", st.Label)
	fmt.Fprintf(w, "Visible:       %v\n", st.Visible)
	fmt.Fprintf(w, "Active:        %s\n", active)
	fmt.Fprintf(w, "Conversations: %d (%d unread)\n", st.Conversations, st.Unread)
	fmt.Fprintf(w, "Uptime:        %s\n", (time.Duration(st.UptimeMs) * time.Millisecond).Round(time.Second))
}

func printConversations(w io.Writer, convs []index.Conversation, now time.Time) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tUNREAD\tLAST\tWHEN")
	for _, c := range convs {
		name := c.DisplayName
		if name == "" {
			name = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n",
			c.CounterpartID, name, c.UnreadCount, oneLine(c.LastMessage.Text, 40), ago(c.LastMessage.Timestamp, now))
	}
	_ = tw.Flush()
}

func printThread(w io.Writer, th api.Thread, selfID string) {
	for _, m := range th.Messages {
		sender := m.SenderName
		if sender == "" {
			sender = m.SenderID
		}
		mark := ""
		if m.FromSelf(selfID) {
			sender = "you"
			mark = " [" + string(m.Status) + "]"
		}
		text := m.Text
		if m.Attachment != nil {
			text = strings.TrimSpace(text + " <" + m.Attachment.Name + ">")
		}
		fmt.Fprintf(w, "%s  %-10s %s%s  (%s)\n", m.Timestamp.Local().Format("2006-01-02 15:04"), sender, oneLine(text, 0), mark, m.ID)
	}
	if th.Typing {
		fmt.Fprintln(w, "... typing")
	}
}

func printEvent(w io.Writer, evt api.Event) {
	keys := make([]string, 0, len(evt.Payload))
	for k := range evt.Payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, evt.Payload[k]))
	}
	fmt.Fprintf(w, "%s %-22s %s\n", evt.OccurredAt.Local().Format("15:04:05.000"), evt.Kind, strings.Join(parts, " "))
}

// oneLine flattens newlines and cuts s to n runes; n <= 0 keeps the length.
func oneLine(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); n > 0 && len(r) > n {
		return string(r[:n-1]) + "…"
	}
	return s
}

func ago(t, now time.Time) string {
	if t.IsZero() {
		return "-"
	}
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "now"
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}
