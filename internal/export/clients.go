package export

import "strings"

const (
	StatusBlocked = "Blocked"
	StatusClient  = "Client"
)

// ClientList classifies companies against allow and block lists
type ClientList struct {
	allow map[string]struct{}
	block map[string]struct{}
}

// NewClientList creates a list from company names. Matching ignores case.
func NewClientList(allow, block []string) *ClientList {
	return &ClientList{
		allow: toSet(allow),
		block: toSet(block),
	}
}

// Status returns StatusBlocked, StatusClient or an empty string. Blocking
// takes precedence.
func (c *ClientList) Status(company string) string {
	key := normalizeCompany(company)
	if key == "" {
		return ""
	}
	if _, ok := c.block[key]; ok {
		return StatusBlocked
	}
	if _, ok := c.allow[key]; ok {
		return StatusClient
	}
	return ""
}

func toSet(names []string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, name := range names {
		if key := normalizeCompany(name); key != "" {
			set[key] = struct{}{}
		}
	}
	return set
}

func normalizeCompany(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}
