package campaign

import "time"

// Verdict labels returned by the screening service.
const (
	LabelGenuine    = "Genuine"
	LabelSuspicious = "Suspicious"
	LabelRejected   = "Rejected"
)

// Verdict is the screening decision for a draft. It is not persisted.
type Verdict struct {
	Label   string
	Message string
	At      time.Time
}

func (v Verdict) Passed() bool { return v.Label == LabelGenuine }

// PendingStatus tracks a creation whose ledger outcome was unknown.
type PendingStatus string

const (
	PendingOpen      PendingStatus = "pending"
	PendingResolved  PendingStatus = "resolved"
	PendingAbandoned PendingStatus = "abandoned"
)

// PendingSubmission is a draft whose ledger write timed out. The reconciler
// resolves it against the ledger; it is never resubmitted blindly.
type PendingSubmission struct {
	Draft      Draft
	Status     PendingStatus
	CampaignID ID
	LastError  string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
