package export

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadscout/hiring-feed-collector/internal/models"
)

func lead(seq int, name, company, degree, body string) models.Lead {
	return models.Lead{
		AnalyzedItem: models.AnalyzedItem{
			Item: models.Item{
				DisplayName:      name,
				BodyText:         body,
				PostURL:          "https://example.com/p/" + name,
				ConnectionDegree: degree,
				PostedAt:         "2d",
			},
			IsHiringSignal: true,
			SequenceNumber: seq,
		},
		Enrichment: models.Enrichment{RoleTitle: "Manager", Organization: company, PositionsMentioned: "SRE"},
	}
}

func TestWriteCSV(t *testing.T) {
	leads := []models.Lead{
		lead(5, "Grace Hopper", "Navy", "2nd", "We're hiring,\nurgently:   \"compiler\" folks"),
		lead(2, "Ada Lovelace", "Engines", "1st", "Join us"),
	}

	var buf bytes.Buffer
	w := NewWriter(DefaultNotes(), NewClientList([]string{"engines"}, []string{"NAVY"}))
	require.NoError(t, w.WriteCSV(&buf, leads, Summary{AnalyzedCount: 40}))

	records, err := csv.NewReader(strings.NewReader(buf.String())).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 4)

	assert.Equal(t, Header, records[0])

	// Ordered by sequence number
	assert.Equal(t, "Ada Lovelace", records[1][0])
	assert.Equal(t, "Client", records[1][6])
	assert.Contains(t, records[1][5], "Ada")

	assert.Equal(t, "Grace Hopper", records[2][0])
	assert.Equal(t, "Blocked", records[2][6])
	assert.Equal(t, "", records[2][5])
	assert.Equal(t, `We're hiring, urgently: "compiler" folks`, records[2][10])

	assert.Equal(t, "Summary", records[3][0])
	assert.Equal(t, "2 leads from 40 analyzed posts", records[3][1])
	assert.Len(t, records[3], len(Header))

	// Quotes are doubled and comma fields quoted in the raw output
	assert.Contains(t, buf.String(), `"We're hiring, urgently: ""compiler"" folks"`)
}

func TestWriteCSV_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewWriter(nil, nil).WriteCSV(&buf, nil, Summary{}))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[1], "Summary,0 leads from 0 analyzed posts"))
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "a b c", Sanitize("  a\r\n b\t\tc  "))
	assert.Equal(t, "", Sanitize("\n\n"))
}

func TestClientList_Status(t *testing.T) {
	list := NewClientList([]string{"Acme Corp", "Globex"}, []string{"Globex", "initech"})

	assert.Equal(t, StatusClient, list.Status("acme  corp"))
	assert.Equal(t, StatusBlocked, list.Status("Globex"))
	assert.Equal(t, StatusBlocked, list.Status("INITECH"))
	assert.Equal(t, "", list.Status("Hooli"))
	assert.Equal(t, "", list.Status(""))
}

func TestTemplateNotes(t *testing.T) {
	notes := DefaultNotes()

	first := notes.Note(lead(1, "Ada Lovelace", "Engines", "1st", ""), "")
	assert.True(t, strings.HasPrefix(first, "Hi Ada, saw Engines is hiring"))

	other := notes.Note(lead(1, "", "Unknown", "3rd+", ""), "")
	assert.Contains(t, other, "Hi there")
	assert.Contains(t, other, "your team")

	client := notes.Note(lead(1, "Ada", "Engines", "2nd", ""), StatusClient)
	assert.Contains(t, client, "growing again")
}
