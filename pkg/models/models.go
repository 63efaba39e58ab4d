package models

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Role identifies who authored a message
type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

// PageLabel is a guideline page reference. The backend sends either a number or a label.
type PageLabel string

// UnmarshalJSON accepts both JSON numbers and strings
func (p *PageLabel) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*p = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*p = PageLabel(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*p = PageLabel(n.String())
	return nil
}

// Int returns the page as an integer when it is numeric
func (p PageLabel) Int() (int, bool) {
	n, err := strconv.Atoi(string(p))
	return n, err == nil
}

// Citation is one evidence excerpt attached to an agent turn
type Citation struct {
	Source  string    `json:"source"`
	Page    PageLabel `json:"page"`
	Excerpt string    `json:"excerpt"`
	ChunkID string    `json:"chunk_id,omitempty"`
}

// Label renders the citation reference as "[source p.page]"
func (c Citation) Label() string {
	return "[" + c.Source + " p." + string(c.Page) + "]"
}

// Message is one turn in a conversation
type Message struct {
	Role      Role
	Content   string
	Citations []Citation
}

// SessionSummary is a directory entry for a known conversation
type SessionSummary struct {
	ID           string
	LastActiveAt time.Time
}

// DisplayName returns the local last-active time, or the id when the time is unknown
func (s SessionSummary) DisplayName() string {
	if s.LastActiveAt.IsZero() {
		return s.ID
	}
	return s.LastActiveAt.Local().Format("Jan 2 15:04")
}

var lastActiveLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ParseLastActive parses a backend timestamp. Timestamps without a zone are UTC.
func ParseLastActive(text string) time.Time {
	text = strings.TrimSpace(text)
	for _, layout := range lastActiveLayouts {
		if t, err := time.ParseInLocation(layout, text, time.UTC); err == nil {
			return t
		}
	}
	return time.Time{}
}

// UrgentReferral is the assessment label for the urgent pathway
const UrgentReferral = "Urgent Referral"

// Assessment is the backend's risk assessment for one patient
type Assessment struct {
	PatientID string
	Label     string
	Reasoning string
	Citations []string
	RanAt     time.Time
}

// IsUrgent reports whether the assessment recommends urgent referral
func (a Assessment) IsUrgent() bool {
	return a.Label == UrgentReferral
}
