package screening

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/vishesh2305/DAAN/internal/campaign"
	"github.com/vishesh2305/DAAN/pkg/errno"
	"github.com/vishesh2305/DAAN/pkg/logger"
	"github.com/vishesh2305/DAAN/pkg/monitor"
)

// Screener classifies campaign text before anything reaches the ledger.
type Screener interface {
	Screen(ctx context.Context, text string) (campaign.Verdict, error)
}

// DefaultTimeout bounds a whole Screen call, retry included.
const DefaultTimeout = 10 * time.Second

type request struct {
	Description string `json:"description"`
}

type response struct {
	Label   string `json:"label"`
	Message string `json:"message"`
}

// Client calls the fraud-classification service over HTTP.
// Anything other than a 200 with a label is an error, never a pass.
type Client struct {
	url     string
	http    *http.Client
	timeout time.Duration
	now     func() time.Time
}

func NewClient(url string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		url:     url,
		http:    &http.Client{},
		timeout: timeout,
		now:     time.Now,
	}
}

// Screen returns the verdict for text. Transient network failures are retried once.
func (c *Client) Screen(ctx context.Context, text string) (campaign.Verdict, error) {
	if strings.TrimSpace(text) == "" {
		return campaign.Verdict{}, errno.ErrValidation.WithMessage("description is required")
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(request{Description: text})
	if err != nil {
		return campaign.Verdict{}, err
	}

	op := func() (response, error) {
		return c.post(ctx, body)
	}
	notify := func(err error, next time.Duration) {
		logger.Warn("screening call failed, retrying", zap.Error(err), zap.Duration("backoff", next))
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	resp, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(2),
		backoff.WithNotify(notify),
	)
	if err != nil {
		monitor.ScreeningVerdictsTotal.WithLabelValues("unavailable").Inc()
		if errors.Is(err, errno.ErrScreeningUnavailable) {
			return campaign.Verdict{}, err
		}
		return campaign.Verdict{}, fmt.Errorf("%w: %w", errno.ErrScreeningUnavailable, err)
	}

	v := toVerdict(resp, c.now())
	monitor.ScreeningVerdictsTotal.WithLabelValues(v.Label).Inc()
	return v, nil
}

func (c *Client) post(ctx context.Context, body []byte) (response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return response{}, backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		if isTransient(ctx, err) {
			return response{}, err
		}
		return response{}, backoff.Permanent(err)
	}
	defer res.Body.Close()

	switch {
	case res.StatusCode == http.StatusOK:
	case res.StatusCode == http.StatusBadGateway,
		res.StatusCode == http.StatusServiceUnavailable,
		res.StatusCode == http.StatusGatewayTimeout:
		return response{}, fmt.Errorf("screening service returned %d", res.StatusCode)
	default:
		return response{}, backoff.Permanent(fmt.Errorf("%w: status %d", errno.ErrScreeningUnavailable, res.StatusCode))
	}

	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return response{}, err
	}

	var out response
	if err := json.Unmarshal(raw, &out); err != nil || strings.TrimSpace(out.Label) == "" {
		return response{}, backoff.Permanent(errno.ErrScreeningUnavailable.WithMessage("malformed screening response"))
	}
	return out, nil
}

// isTransient is true for connection-level failures while time remains.
func isTransient(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF)
}

// toVerdict normalizes labels. Unknown labels become Rejected and keep the original text.
func toVerdict(r response, at time.Time) campaign.Verdict {
	label := strings.TrimSpace(r.Label)
	switch {
	case strings.EqualFold(label, campaign.LabelGenuine):
		return campaign.Verdict{Label: campaign.LabelGenuine, Message: r.Message, At: at}
	case strings.EqualFold(label, campaign.LabelSuspicious):
		return campaign.Verdict{Label: campaign.LabelSuspicious, Message: r.Message, At: at}
	case strings.EqualFold(label, campaign.LabelRejected):
		return campaign.Verdict{Label: campaign.LabelRejected, Message: r.Message, At: at}
	default:
		msg := label
		if r.Message != "" {
			msg = label + ": " + r.Message
		}
		return campaign.Verdict{Label: campaign.LabelRejected, Message: msg, At: at}
	}
}
