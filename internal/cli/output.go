package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"direct-chat-backend/internal/client"
	"direct-chat-backend/internal/models"
)

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printContacts(w io.Writer, format string, users []models.User) error {
	if format == "json" {
		return printJSON(w, users)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tEMAIL")
	for _, u := range users {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", u.ID, u.FullName, u.Email)
	}
	return tw.Flush()
}

func printChats(w io.Writer, format string, chats []models.ChatPartner) error {
	if format == "json" {
		return printJSON(w, chats)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tUNREAD\tLAST MESSAGE")
	for _, c := range chats {
		last := "-"
		if c.LastMessageTime != nil {
			last = c.LastMessageTime.Local().Format(time.DateTime)
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", c.ID, c.FullName, c.UnreadCount, last)
	}
	return tw.Flush()
}

func printMessages(w io.Writer, format string, self string, partner *models.User, messages []client.ClientMessage) error {
	if format == "json" {
		return printJSON(w, messages)
	}
	for _, m := range messages {
		fmt.Fprintln(w, formatMessage(self, partner, m))
	}
	return nil
}

func formatMessage(self string, partner *models.User, m client.ClientMessage) string {
	who := "me"
	if m.SenderID != self {
		who = m.SenderID
		if partner != nil && partner.ID == m.SenderID && partner.FullName != "" {
			who = partner.FullName
		}
	}

	body := m.Text
	if m.Image != "" {
		if body != "" {
			body += " "
		}
		body += "[image]"
	}

	status := ""
	switch {
	case m.Status == client.StatusSending:
		status = " (sending)"
	case m.Status == client.StatusFailed:
		status = " (failed, /resend " + m.ID + ")"
	case m.SenderID == self && m.Read:
		status = " ✓✓"
	case m.SenderID == self:
		status = " ✓"
	}

	stamp := ""
	if !m.CreatedAt.IsZero() {
		stamp = m.CreatedAt.Local().Format("15:04") + " "
	}
	return fmt.Sprintf("%s[%s] %s%s", stamp, who, body, status)
}
