package types

import "strings"

// Address is an immutable shipping-address snapshot captured at checkout.
// Stored as JSONB on the order row so later edits to a saved address never
// rewrite history.
type Address struct {
	Name    string `json:"name" validate:"required,max=120"`
	Phone   string `json:"phone" validate:"required,e164"`
	Line1   string `json:"line1" validate:"required,max=200"`
	Line2   string `json:"line2,omitempty" validate:"max=200"`
	City    string `json:"city" validate:"required,max=80"`
	State   string `json:"state" validate:"required,max=80"`
	Pincode string `json:"pincode" validate:"required,len=6,numeric"`
}

func (a Address) IsZero() bool {
	return a == Address{}
}

// OneLine renders the address for courier manifests and email bodies.
func (a Address) OneLine() string {
	parts := make([]string, 0, 5)
	for _, p := range []string{a.Line1, a.Line2, a.City, a.State} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if a.Pincode != "" {
		parts = append(parts, a.Pincode)
	}
	return strings.Join(parts, ", ")
}
