package domain

import "strings"

// ActorType is the role a caller acts under.
type ActorType string

const (
	ActorDriver       ActorType = "driver"
	ActorPartner      ActorType = "partner"
	ActorPartnerStaff ActorType = "partner_staff"
	ActorOperator     ActorType = "admin"
	ActorSystem       ActorType = "system"
)

// ParseActorType maps token roles onto actor types; unknown roles yield "".
func ParseActorType(role string) ActorType {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case "driver":
		return ActorDriver
	case "partner", "fleet_owner":
		return ActorPartner
	case "partner_staff", "staff":
		return ActorPartnerStaff
	case "admin", "operator", "super_admin":
		return ActorOperator
	case "system":
		return ActorSystem
	default:
		return ""
	}
}

// Actor identifies who performs an operation.
type Actor struct {
	ID   string    `json:"id"`
	Type ActorType `json:"type"`
}

func (a Actor) IsOperator() bool { return a.Type == ActorOperator || a.Type == ActorSystem }

// RequestContext carries authenticated user info when available.
type RequestContext struct {
	Actor     Actor  `json:"actor"`
	RequestID string `json:"requestId"`
}
