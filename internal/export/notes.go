package export

import (
	"fmt"
	"strings"

	"github.com/leadscout/hiring-feed-collector/internal/models"
)

// NoteFormatter produces the connection note for a lead
type NoteFormatter interface {
	Note(lead models.Lead, clientStatus string) string
}

// TemplateNotes picks a note template by client status and connection degree
type TemplateNotes struct {
	Client      string
	FirstDegree string
	Default     string
}

// DefaultNotes returns the stock note templates. Each template takes the
// first name and the company as format arguments.
func DefaultNotes() TemplateNotes {
	return TemplateNotes{
		Client:      "Hi %s, great to see %s growing again. Happy to help with the new roles whenever useful.",
		FirstDegree: "Hi %s, saw %s is hiring. Would love to catch up on what you're looking for.",
		Default:     "Hi %s, noticed %s is hiring and wanted to connect. I work with candidates who could be a fit.",
	}
}

// Note renders the note for lead
func (t TemplateNotes) Note(lead models.Lead, clientStatus string) string {
	if clientStatus == StatusBlocked {
		return ""
	}

	template := t.Default
	switch {
	case clientStatus == StatusClient:
		template = t.Client
	case strings.HasPrefix(lead.ConnectionDegree, "1"):
		template = t.FirstDegree
	}

	company := lead.Organization
	if company == "" || company == "Unknown" {
		company = "your team"
	}
	return fmt.Sprintf(template, firstName(lead.DisplayName), company)
}

func firstName(name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return "there"
	}
	return fields[0]
}
