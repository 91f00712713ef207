package models

import "time"

type IssueType string

const (
	IssueMechanical    IssueType = "mechanical"
	IssueDamage        IssueType = "damage"
	IssueCleanliness   IssueType = "cleanliness"
	IssueDocumentation IssueType = "documentation"
	IssueOther         IssueType = "other"
)

func (t IssueType) Valid() bool {
	switch t {
	case IssueMechanical, IssueDamage, IssueCleanliness, IssueDocumentation, IssueOther:
		return true
	}
	return false
}

type IssueSeverity string

const (
	SeverityLow      IssueSeverity = "low"
	SeverityMedium   IssueSeverity = "medium"
	SeverityHigh     IssueSeverity = "high"
	SeverityCritical IssueSeverity = "critical"
)

func (s IssueSeverity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// Escalated is true for severities that raise notification priority.
func (s IssueSeverity) Escalated() bool {
	return s == SeverityHigh || s == SeverityCritical
}

type IssueStatus string

const (
	IssueOpen     IssueStatus = "open"
	IssueResolved IssueStatus = "resolved"
)

// Issue is a problem reported against a booking.
type Issue struct {
	ID             string        `json:"id"`
	BookingID      string        `json:"booking_id"`
	Type           IssueType     `json:"type"`
	Description    string        `json:"description"`
	Severity       IssueSeverity `json:"severity"`
	Status         IssueStatus   `json:"status"`
	ReportedBy     string        `json:"reported_by"`
	ReportedByType string        `json:"reported_by_type"`
	Images         []string      `json:"images"`
	ReportedAt     time.Time     `json:"reported_at"`

	Resolution     *string    `json:"resolution,omitempty"`
	ResolvedBy     *string    `json:"resolved_by,omitempty"`
	ResolvedByType *string    `json:"resolved_by_type,omitempty"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
}
