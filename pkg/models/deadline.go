package models

import "time"

// Requisition is the tuple the scaler keys budgets and bans on.
type Requisition struct {
	User     string `json:"user"`
	Group    string `json:"group"`
	Pipeline string `json:"pipeline"`
	Stage    int    `json:"stage"`
}

// DeadlineEntry is one pending job awaiting placement, ordered by SLA
// within its scaler's sorted index (§3 Deadline entry).
type DeadlineEntry struct {
	Scaler     ScalerKind  `json:"scaler"`
	Req        Requisition `json:"requisition"`
	Creator    string      `json:"creator"`
	SLA        time.Time   `json:"sla"`
	ReactionID string      `json:"reaction_id"`
	JobID      string      `json:"job_id"`
}
