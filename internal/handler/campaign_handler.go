package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/vishesh2305/DAAN/internal/auth"
	"github.com/vishesh2305/DAAN/internal/campaign"
	"github.com/vishesh2305/DAAN/internal/handler/request"
	"github.com/vishesh2305/DAAN/internal/handler/response"
	"github.com/vishesh2305/DAAN/internal/service/lifecycle"
	"github.com/vishesh2305/DAAN/pkg/errno"
	"github.com/vishesh2305/DAAN/pkg/validator"
)

type CampaignHandler struct {
	lifecycle *lifecycle.Orchestrator
}

func NewCampaignHandler(o *lifecycle.Orchestrator) *CampaignHandler {
	return &CampaignHandler{lifecycle: o}
}

type verdictResponse struct {
	Label   string `json:"label"`
	Message string `json:"message,omitempty"`
}

type createResponse struct {
	Nonce    string           `json:"nonce"`
	Existing bool             `json:"existing"`
	Verdict  *verdictResponse `json:"verdict,omitempty"`
	Campaign *campaign.View   `json:"campaign,omitempty"`
}

type receiptResponse struct {
	CampaignID campaign.ID `json:"campaign_id"`
	TxHash     string      `json:"tx_hash"`
	Amount     string      `json:"amount"`
	ClaimedBy  string      `json:"claimed_by"`
	ClaimedAt  time.Time   `json:"claimed_at"`
}

// Create submits a campaign for screening and ledger creation.
// @Router /api/v1/campaigns [post]
func (h *CampaignHandler) Create(c *gin.Context) {
	// 1. bind
	var req request.CreateCampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errno.ErrBind.WithMessage(validator.GetErrorMsg(err)))
		return
	}
	target, err := decimal.NewFromString(req.Target)
	if err != nil {
		response.Error(c, errno.ErrValidation.WithMessage("target is not a decimal"))
		return
	}

	// 2. owner from the session only
	d := campaign.Draft{
		Nonce:       req.Nonce,
		Owner:       auth.Account(c),
		Title:       req.Title,
		Description: req.Description,
		Target:      target,
		Deadline:    time.Unix(req.Deadline, 0),
		Image:       req.Image,
		Category:    req.Category,
	}

	// 3. lifecycle
	res, err := h.lifecycle.Create(c.Request.Context(), d)
	out := createResponse{}
	if res != nil {
		out.Nonce, out.Existing = res.Nonce, res.Existing
		if res.Verdict.Label != "" {
			out.Verdict = &verdictResponse{Label: res.Verdict.Label, Message: res.Verdict.Message}
		}
	}
	if err != nil {
		response.ErrorWithData(c, err, out)
		return
	}

	v, err := h.lifecycle.View(c.Request.Context(), res.Campaign.ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	out.Campaign = &v
	response.Success(c, out)
}

// List returns every Active, Expired or Claimed campaign.
// @Router /api/v1/campaigns [get]
func (h *CampaignHandler) List(c *gin.Context) {
	views, err := h.lifecycle.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	if views == nil {
		views = []campaign.View{}
	}
	response.Success(c, views)
}

// Get returns one campaign with its aggregates.
// @Router /api/v1/campaigns/{id} [get]
func (h *CampaignHandler) Get(c *gin.Context) {
	id, ok := bindID(c)
	if !ok {
		return
	}
	v, err := h.lifecycle.View(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, v)
}

// Donors returns per-donor totals, largest first.
// @Router /api/v1/campaigns/{id}/donors [get]
func (h *CampaignHandler) Donors(c *gin.Context) {
	id, ok := bindID(c)
	if !ok {
		return
	}
	if _, err := h.lifecycle.View(c.Request.Context(), id); err != nil {
		response.Error(c, err)
		return
	}
	donors, err := h.lifecycle.Donors(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	if donors == nil {
		donors = []campaign.DonorTotal{}
	}
	response.Success(c, donors)
}

// Claim withdraws the collected funds for the session's account.
// @Router /api/v1/campaigns/{id}/claim [post]
func (h *CampaignHandler) Claim(c *gin.Context) {
	id, ok := bindID(c)
	if !ok {
		return
	}
	r, err := h.lifecycle.Claim(c.Request.Context(), id, auth.Account(c))
	if err != nil {
		response.ErrorWithData(c, err, gin.H{"campaign_id": id})
		return
	}
	response.Success(c, receiptResponse{
		CampaignID: r.CampaignID,
		TxHash:     r.TxHash,
		Amount:     r.Amount.String(),
		ClaimedBy:  r.ClaimedBy,
		ClaimedAt:  r.ClaimedAt,
	})
}

// Reconcile replays the ledger's donor list into the local record.
// @Router /api/v1/campaigns/{id}/reconcile [post]
func (h *CampaignHandler) Reconcile(c *gin.Context) {
	id, ok := bindID(c)
	if !ok {
		return
	}
	rep, err := h.lifecycle.Reconcile(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{
		"campaign_id":  rep.CampaignID,
		"ledger_total": rep.LedgerTotal.String(),
		"local_total":  rep.LocalTotal.String(),
		"added":        rep.Added,
		"consistent":   rep.Consistent,
	})
}

func bindID(c *gin.Context) (campaign.ID, bool) {
	var uri request.CampaignURI
	if err := c.ShouldBindUri(&uri); err != nil {
		response.Error(c, errno.ErrBind.WithMessage("invalid campaign id"))
		return 0, false
	}
	return campaign.ID(uri.ID), true
}
