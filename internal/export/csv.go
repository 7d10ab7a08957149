package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"regexp"
	"slices"
	"strings"

	"github.com/leadscout/hiring-feed-collector/internal/models"
)

// Header is the fixed column order of the export
var Header = []string{
	"Name", "Title", "Company", "Position", "Connection Degree", "Connection Note",
	"Blocked Status", "Post URL", "Profile URL", "Post Date", "Post Content",
}

var whitespaceRe = regexp.MustCompile(`\s+`)

// Summary describes the session the leads came from
type Summary struct {
	AnalyzedCount int
}

// Writer renders leads as CSV
type Writer struct {
	notes   NoteFormatter
	clients *ClientList
}

// NewWriter creates a new export writer. Nil collaborators leave their columns empty.
func NewWriter(notes NoteFormatter, clients *ClientList) *Writer {
	return &Writer{notes: notes, clients: clients}
}

// WriteCSV writes the header, one row per lead in sequence order, and a summary row
func (x *Writer) WriteCSV(w io.Writer, leads []models.Lead, summary Summary) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	ordered := slices.Clone(leads)
	slices.SortStableFunc(ordered, func(a, b models.Lead) int {
		return a.SequenceNumber - b.SequenceNumber
	})

	for _, lead := range ordered {
		if err := cw.Write(x.row(lead)); err != nil {
			return fmt.Errorf("failed to write lead %d: %w", lead.SequenceNumber, err)
		}
	}

	summaryRow := make([]string, len(Header))
	summaryRow[0] = "Summary"
	summaryRow[1] = fmt.Sprintf("%d leads from %d analyzed posts", len(leads), summary.AnalyzedCount)
	if err := cw.Write(summaryRow); err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}

	cw.Flush()
	return cw.Error()
}

func (x *Writer) row(lead models.Lead) []string {
	var note, status string
	if x.clients != nil {
		status = x.clients.Status(lead.Organization)
	}
	if x.notes != nil {
		note = x.notes.Note(lead, status)
	}

	fields := []string{
		lead.DisplayName,
		lead.RoleTitle,
		lead.Organization,
		lead.PositionsMentioned,
		lead.ConnectionDegree,
		note,
		status,
		lead.PostURL,
		lead.ProfileURL,
		lead.PostedAt,
		lead.BodyText,
	}
	for i := range fields {
		fields[i] = Sanitize(fields[i])
	}
	return fields
}

// Sanitize collapses line breaks and whitespace runs to single spaces
func Sanitize(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}
