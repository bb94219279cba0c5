// Package ticket defines the maintenance ticket built from a completed
// intake flow and the client that submits it for ingestion.
package ticket

import (
	"fmt"
	"strings"
)

// Ticket is the structured record submitted once per completed flow.
// Tri-state answers are nil when the caller never gave a usable answer.
type Ticket struct {
	ID                string `json:"id"`
	CallID            string `json:"call_id"`
	ToNumber          string `json:"to_number"`
	FromNumber        string `json:"from_number"`
	UnitNumber        string `json:"unit_number"`
	IssueDescription  string `json:"issue_description"`
	IsEmergency       bool   `json:"is_emergency"`
	PermissionToEnter *bool  `json:"permission_to_enter"`
	PetsPresent       *bool  `json:"pets_present"`
	Transcript        string `json:"transcript"`
	CreatedAt         string `json:"created_at"`
}

// Summary renders the human-readable multi-line transcript summary.
func Summary(t *Ticket) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Unit: %s\n", orUnknown(t.UnitNumber))
	fmt.Fprintf(&b, "Issue: %s\n", orUnknown(t.IssueDescription))
	fmt.Fprintf(&b, "Emergency: %s\n", yesNo(&t.IsEmergency))
	fmt.Fprintf(&b, "Permission to enter: %s\n", yesNo(t.PermissionToEnter))
	fmt.Fprintf(&b, "Pets present: %s", yesNo(t.PetsPresent))
	return b.String()
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "unknown"
	}
	return s
}

func yesNo(v *bool) string {
	switch {
	case v == nil:
		return "unknown"
	case *v:
		return "yes"
	default:
		return "no"
	}
}
