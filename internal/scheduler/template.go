package scheduler

import (
	"strings"

	"github.com/ignite/outreach-scheduler/internal/domain"
)

// Render substitutes the message template tokens {{username}}, {{firstName}},
// {{name}} and {{bio}} with the outbound lead's profile fields. Missing
// fields render as empty strings; no other escaping is applied.
func Render(tpl string, lead *domain.OutboundLead) string {
	r := strings.NewReplacer(
		"{{username}}", lead.Username,
		"{{firstName}}", firstName(lead),
		"{{name}}", lead.Name,
		"{{bio}}", lead.Bio,
	)
	return r.Replace(tpl)
}

// firstName is the whitespace-split first word of the lead's display name,
// falling back to the username when the name is empty.
func firstName(lead *domain.OutboundLead) string {
	name := strings.TrimSpace(lead.Name)
	if name == "" {
		return lead.Username
	}
	if fields := strings.Fields(name); len(fields) > 0 {
		return fields[0]
	}
	return lead.Username
}
