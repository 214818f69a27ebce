package event

// Topics published through the outbox, and the one consumed from external indexers.
const (
	TopicCampaignActivated = "daan_events_campaign_activated"
	TopicPledgeRecorded    = "daan_events_pledge_recorded"
	TopicCampaignClaimed   = "daan_events_campaign_claimed"
	TopicLedgerPledge      = "daan_events_ledger_pledge"
)

// CampaignActivatedEvent is published once a campaign is confirmed on the ledger.
// Topic: daan_events_campaign_activated
type CampaignActivatedEvent struct {
	CampaignID uint64 `json:"campaign_id"`
	Owner      string `json:"owner"`
	Title      string `json:"title"`
	Target     string `json:"target"` // Decimal string, ETH
	Deadline   int64  `json:"deadline"`
	Category   string `json:"category,omitempty"`
}

// PledgeRecordedEvent is published for every newly recorded pledge. Replays are not republished.
// Topic: daan_events_pledge_recorded
type PledgeRecordedEvent struct {
	CampaignID      uint64 `json:"campaign_id"`
	Donor           string `json:"donor"`
	Amount          string `json:"amount"`
	LedgerRef       string `json:"ledger_ref"`
	ConfirmedAt     int64  `json:"confirmed_at"`
	AmountCollected string `json:"amount_collected"`
}

// CampaignClaimedEvent
// Topic: daan_events_campaign_claimed
type CampaignClaimedEvent struct {
	CampaignID uint64 `json:"campaign_id"`
	ClaimedBy  string `json:"claimed_by"`
	Amount     string `json:"amount"`
	TxHash     string `json:"tx_hash"`
	ClaimedAt  int64  `json:"claimed_at"`
}

// LedgerPledgeEvent is a confirmed donation reported by an external chain indexer.
// Topic: daan_events_ledger_pledge
type LedgerPledgeEvent struct {
	CampaignID  uint64 `json:"campaign_id"`
	Index       int    `json:"index"` // position in the campaign's donor list
	Donor       string `json:"donor"`
	Amount      string `json:"amount"`
	ConfirmedAt int64  `json:"confirmed_at"`
}
