package request

// CreateCampaignRequest is the creation form. The owner is never read from
// the body; it comes from the verified session.
type CreateCampaignRequest struct {
	Title       string `json:"title" binding:"required,max=200"`
	Description string `json:"description" binding:"required,max=5000"`
	Target      string `json:"target" binding:"required,eth_amount"` // ETH, decimal string
	Deadline    int64  `json:"deadline" binding:"required,gt=0"`     // unix seconds
	Image       string `json:"image" binding:"omitempty,url"`
	Category    string `json:"category" binding:"omitempty,max=64"`
	// Nonce makes resubmission idempotent. Generated when empty.
	Nonce string `json:"nonce" binding:"omitempty,max=64"`
}

type CampaignURI struct {
	ID uint64 `uri:"id"` // ledger ids start at 0
}
