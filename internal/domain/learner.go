package domain

import "time"

// LearnerState is a named position in the retirement pipeline as the LMS
// records it.
type LearnerState struct {
	Name string `json:"state_name"`
}

// LearnerRecord is the retirement record for a single learner. The record
// is owned by the LMS; drivers read it at the start of a run and mutate it
// only through the LMS state-transition endpoint. OriginalUsername is the
// stable key used across every service and never changes mid-pipeline.
type LearnerRecord struct {
	ID               int64        `json:"id"`
	UserID           int64        `json:"user_id"`
	OriginalUsername string       `json:"original_username"`
	OriginalEmail    string       `json:"original_email"`
	OriginalName     string       `json:"original_name"`
	RetiredUsername  string       `json:"retired_username"`
	RetiredEmail     string       `json:"retired_email"`
	CurrentState     LearnerState `json:"current_state"`
	LastState        LearnerState `json:"last_state"`
	Created          time.Time    `json:"created"`
	Modified         time.Time    `json:"modified"`

	// EcommerceSegmentID is per-run enrichment fetched once before the
	// pipeline runs. It is never persisted back to the LMS.
	EcommerceSegmentID string `json:"-"`
}

// OrgConfig carries a partner organization's report field headings when
// they differ from the defaults.
type OrgConfig struct {
	Name          string   `json:"name"`
	FieldHeadings []string `json:"field_headings,omitempty"`
}

// ReportLearner is a learner pending partner notification, as returned by
// the LMS partner-report queue. Orgs lists default-heading partners and
// OrgsConfig the partners with custom headings; a learner can appear in
// both.
type ReportLearner struct {
	UserID           int64       `json:"user_id"`
	OriginalUsername string      `json:"original_username"`
	OriginalEmail    string      `json:"original_email"`
	OriginalName     string      `json:"original_name"`
	Orgs             []string    `json:"orgs"`
	OrgsConfig       []OrgConfig `json:"orgs_config,omitempty"`
	Created          time.Time   `json:"created"`
}
