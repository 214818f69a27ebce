package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/vishesh2305/DAAN/internal/campaign"
	"github.com/vishesh2305/DAAN/pkg/errno"
	"github.com/vishesh2305/DAAN/pkg/logger"
	"github.com/vishesh2305/DAAN/pkg/monitor"
)

// EthClient is the subset of *ethclient.Client the gateway needs.
type EthClient interface {
	ChainID(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// EthOptions tunes confirmation polling and the creation lookup.
type EthOptions struct {
	ConfirmTimeout time.Duration // bound on waiting for a receipt
	PollInterval   time.Duration // first receipt poll interval, grows exponentially
	ScanDepth      uint64        // how many recent campaigns FindCampaign inspects
	Now            func() time.Time
}

// EthGateway drives the CrowdFunding contract through raw JSON-RPC calls.
type EthGateway struct {
	client   EthClient
	contract common.Address
	chainID  *big.Int
	keys     *KeyRing
	opts     EthOptions

	sendMu    sync.Mutex
	nextNonce map[common.Address]uint64
	// creations awaiting a definitive outcome keep their account nonce, so a
	// resubmission replaces the original transaction instead of adding one.
	reserved map[campaign.DedupKey]uint64
}

func NewEthGateway(ctx context.Context, client EthClient, contract common.Address, keys *KeyRing, opts EthOptions) (*EthGateway, error) {
	if opts.ConfirmTimeout <= 0 {
		opts.ConfirmTimeout = 60 * time.Second
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	if opts.ScanDepth == 0 {
		opts.ScanDepth = 256
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: chain id: %w", errno.ErrLedgerUnavailable, err)
	}
	logger.Info("ledger gateway connected",
		zap.String("chain_id", chainID.String()),
		zap.String("contract", contract.Hex()),
		zap.String("relayer", keys.Relayer().Hex()))

	return &EthGateway{
		client:    client,
		contract:  contract,
		chainID:   chainID,
		keys:      keys,
		opts:      opts,
		nextNonce: make(map[common.Address]uint64),
		reserved:  make(map[campaign.DedupKey]uint64),
	}, nil
}

func (g *EthGateway) CreateCampaign(ctx context.Context, d campaign.Draft) (campaign.ID, error) {
	timer := prometheus.NewTimer(monitor.LedgerCallDuration.WithLabelValues("create"))
	defer timer.ObserveDuration()

	if !common.IsHexAddress(d.Owner) {
		return 0, errno.ErrLedgerRejected.WithMessage("malformed owner account")
	}
	data, err := contractABI.Pack("createCampaign",
		common.HexToAddress(d.Owner),
		d.Title,
		d.Description,
		ToWei(d.Target),
		big.NewInt(d.Deadline.Unix()),
		d.Image,
	)
	if err != nil {
		return 0, errno.ErrLedgerRejected.WithMessage(err.Error())
	}

	key := slotKey(d.Key())
	if _, err := g.transact(ctx, "createCampaign", g.keys.Relayer(), data, &key); err != nil {
		return 0, err
	}

	// createCampaign's return value is not in the receipt, so read the id back.
	id, found, err := g.FindCampaign(ctx, d.Key())
	if err != nil {
		return 0, fmt.Errorf("%w: locate created campaign: %w", errno.ErrLedgerTimeout, err)
	}
	if !found {
		return 0, errno.ErrLedgerTimeout.WithMessage("confirmed creation not found in recent campaigns")
	}
	return id, nil
}

func (g *EthGateway) FindCampaign(ctx context.Context, key campaign.DedupKey) (campaign.ID, bool, error) {
	n, err := g.count(ctx)
	if err != nil {
		return 0, false, err
	}
	var floor uint64
	if n > g.opts.ScanDepth {
		floor = n - g.opts.ScanDepth
	}
	for i := n; i > floor; i-- {
		s, err := g.snapshot(ctx, campaign.ID(i-1))
		if err != nil {
			return 0, false, err
		}
		if key.Matches(s.Owner, s.Title, s.Deadline.Unix()) {
			return s.ID, true, nil
		}
	}
	return 0, false, nil
}

func (g *EthGateway) GetCampaign(ctx context.Context, id campaign.ID) (Snapshot, error) {
	n, err := g.count(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	if uint64(id) >= n {
		return Snapshot{}, errno.ErrCampaignNotFound
	}
	return g.snapshot(ctx, id)
}

func (g *EthGateway) ListCampaigns(ctx context.Context) ([]Snapshot, error) {
	n, err := g.count(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Snapshot, 0, n)
	for i := uint64(0); i < n; i++ {
		s, err := g.snapshot(ctx, campaign.ID(i))
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// GetDonors reads the donor list at the latest block. The contract keeps no
// timestamps, so every entry is stamped with that block's time.
func (g *EthGateway) GetDonors(ctx context.Context, id campaign.ID) ([]Donation, error) {
	timer := prometheus.NewTimer(monitor.LedgerCallDuration.WithLabelValues("get_donors"))
	defer timer.ObserveDuration()

	head, err := g.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, classifyRead("latest header", err)
	}
	out, err := g.callAt(ctx, head.Number, "getDonators", new(big.Int).SetUint64(uint64(id)))
	if err != nil {
		return nil, err
	}
	donors, ok1 := out[0].([]common.Address)
	amounts, ok2 := out[1].([]*big.Int)
	if !ok1 || !ok2 || len(donors) != len(amounts) {
		return nil, errno.ErrLedgerUnavailable.WithMessage("unexpected getDonators output")
	}

	at := time.Unix(int64(head.Time), 0)
	res := make([]Donation, len(donors))
	for i := range donors {
		res[i] = Donation{Index: i, Donor: donors[i].Hex(), Amount: FromWei(amounts[i]), ConfirmedAt: at}
	}
	return res, nil
}

func (g *EthGateway) Claim(ctx context.Context, id campaign.ID, caller string) (campaign.Receipt, error) {
	timer := prometheus.NewTimer(monitor.LedgerCallDuration.WithLabelValues("claim"))
	defer timer.ObserveDuration()

	s, err := g.GetCampaign(ctx, id)
	if err != nil {
		return campaign.Receipt{}, err
	}
	if !strings.EqualFold(s.Owner, caller) {
		return campaign.Receipt{}, errno.ErrNotOwner
	}
	if !g.opts.Now().After(s.Deadline) {
		return campaign.Receipt{}, errno.ErrNotExpired
	}
	if s.Claimed {
		return campaign.Receipt{}, errno.ErrAlreadyClaimed
	}

	data, err := contractABI.Pack("claimFunds", new(big.Int).SetUint64(uint64(id)))
	if err != nil {
		return campaign.Receipt{}, errno.ErrLedgerRejected.WithMessage(err.Error())
	}
	rcpt, err := g.transact(ctx, "claimFunds", common.HexToAddress(s.Owner), data, nil)
	if err != nil {
		return campaign.Receipt{}, err
	}

	return campaign.Receipt{
		CampaignID: id,
		TxHash:     rcpt.TxHash.Hex(),
		Amount:     s.AmountCollected,
		ClaimedBy:  s.Owner,
		ClaimedAt:  g.opts.Now(),
	}, nil
}

// transact signs and sends a contract call from account and waits for it to be mined.
// slot, when set, pins the account nonce until the outcome is definitive.
func (g *EthGateway) transact(ctx context.Context, op string, from common.Address, data []byte, slot *campaign.DedupKey) (*types.Receipt, error) {
	key, ok := g.keys.Key(from)
	if !ok {
		return nil, errno.ErrLedgerRejected.WithMessage("no signing key for " + from.Hex())
	}

	g.sendMu.Lock()
	nonce, replacing := uint64(0), false
	if slot != nil {
		nonce, replacing = g.reserved[*slot]
	}
	if !replacing {
		pending, err := g.client.PendingNonceAt(ctx, from)
		if err != nil {
			g.sendMu.Unlock()
			return nil, classifyRead(op+": nonce", err)
		}
		nonce = max(pending, g.nextNonce[from])
	}

	gasPrice, err := g.client.SuggestGasPrice(ctx)
	if err != nil {
		g.sendMu.Unlock()
		return nil, classifyRead(op+": gas price", err)
	}
	if replacing {
		// replacement must outbid the original
		gasPrice = new(big.Int).Div(new(big.Int).Mul(gasPrice, big.NewInt(5)), big.NewInt(4))
	}

	gas, err := g.client.EstimateGas(ctx, ethereum.CallMsg{From: from, To: &g.contract, Data: data})
	if err != nil {
		g.sendMu.Unlock()
		return nil, classifyRead(op+": estimate gas", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gas,
		To:       &g.contract,
		Data:     data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(g.chainID), key)
	if err != nil {
		g.sendMu.Unlock()
		return nil, fmt.Errorf("%w: sign %s: %w", errno.ErrLedgerRejected, op, err)
	}

	sendErr := g.client.SendTransaction(ctx, signed)
	sendErr = classifySend(op, sendErr)
	if sendErr == nil || errors.Is(sendErr, errno.ErrLedgerTimeout) {
		if !replacing && nonce >= g.nextNonce[from] {
			g.nextNonce[from] = nonce + 1
		}
		if slot != nil {
			g.reserved[*slot] = nonce
		}
	}
	g.sendMu.Unlock()
	if sendErr != nil {
		logger.Warn("ledger send failed", zap.String("op", op), zap.Uint64("nonce", nonce), zap.Error(sendErr))
		return nil, sendErr
	}

	logger.Info("ledger transaction sent",
		zap.String("op", op), zap.String("tx_hash", signed.Hash().Hex()),
		zap.Uint64("nonce", nonce), zap.Bool("replacement", replacing))

	rcpt, err := g.waitMined(ctx, signed.Hash())
	if err != nil && errors.Is(err, errno.ErrLedgerTimeout) {
		return nil, err
	}
	if slot != nil {
		g.release(*slot)
	}
	return rcpt, err
}

func (g *EthGateway) release(slot campaign.DedupKey) {
	g.sendMu.Lock()
	defer g.sendMu.Unlock()
	delete(g.reserved, slot)
}

// waitMined polls for the receipt with exponential backoff, bounded by ConfirmTimeout.
func (g *EthGateway) waitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, g.opts.ConfirmTimeout)
	defer cancel()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = g.opts.PollInterval
	bo.MaxInterval = 8 * g.opts.PollInterval

	rcpt, err := backoff.Retry(ctx, func() (*types.Receipt, error) {
		return g.client.TransactionReceipt(ctx, hash)
	}, backoff.WithBackOff(bo), backoff.WithMaxElapsedTime(g.opts.ConfirmTimeout))
	if err != nil {
		return nil, fmt.Errorf("%w: tx %s: %w", errno.ErrLedgerTimeout, hash.Hex(), err)
	}
	if rcpt.Status != types.ReceiptStatusSuccessful {
		return nil, errno.ErrLedgerRejected.WithMessage("transaction reverted: " + hash.Hex())
	}
	return rcpt, nil
}

func (g *EthGateway) count(ctx context.Context) (uint64, error) {
	out, err := g.callAt(ctx, nil, "numberofCampaigns")
	if err != nil {
		return 0, err
	}
	n, ok := out[0].(*big.Int)
	if !ok {
		return 0, errno.ErrLedgerUnavailable.WithMessage("unexpected numberofCampaigns output")
	}
	return n.Uint64(), nil
}

func (g *EthGateway) snapshot(ctx context.Context, id campaign.ID) (Snapshot, error) {
	out, err := g.callAt(ctx, nil, "campaigns", new(big.Int).SetUint64(uint64(id)))
	if err != nil {
		return Snapshot{}, err
	}
	if len(out) != 8 {
		return Snapshot{}, errno.ErrLedgerUnavailable.WithMessage("unexpected campaigns output")
	}
	owner, _ := out[0].(common.Address)
	title, _ := out[1].(string)
	description, _ := out[2].(string)
	target, _ := out[3].(*big.Int)
	deadline, _ := out[4].(*big.Int)
	collected, _ := out[5].(*big.Int)
	image, _ := out[6].(string)
	claimed, _ := out[7].(bool)

	var dl int64
	if deadline != nil {
		dl = deadline.Int64()
	}
	return Snapshot{
		ID:              id,
		Owner:           owner.Hex(),
		Title:           title,
		Description:     description,
		Target:          FromWei(target),
		Deadline:        time.Unix(dl, 0),
		AmountCollected: FromWei(collected),
		Image:           image,
		Claimed:         claimed,
	}, nil
}

func (g *EthGateway) callAt(ctx context.Context, block *big.Int, method string, args ...interface{}) ([]interface{}, error) {
	data, err := contractABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	raw, err := g.client.CallContract(ctx, ethereum.CallMsg{To: &g.contract, Data: data}, block)
	if err != nil {
		return nil, classifyRead(method, err)
	}
	out, err := contractABI.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: unpack %s: %w", errno.ErrLedgerUnavailable, method, err)
	}
	return out, nil
}

func slotKey(k campaign.DedupKey) campaign.DedupKey {
	k.Owner = strings.ToLower(k.Owner)
	return k
}

var rejectedMarkers = []string{
	"execution reverted",
	"insufficient funds",
	"invalid sender",
	"gas required exceeds",
	"intrinsic gas too low",
}

// outcome of a send with these errors depends on whether an earlier transaction with the same nonce landed
var unknownMarkers = []string{
	"nonce too low",
	"already known",
	"replacement transaction underpriced",
}

func containsAny(s string, markers []string) bool {
	s = strings.ToLower(s)
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

// classifyRead maps errors raised before anything is submitted.
func classifyRead(op string, err error) error {
	var rpcErr rpc.Error
	if containsAny(err.Error(), rejectedMarkers) || (errors.As(err, &rpcErr) && rpcErr.ErrorCode() == 3) {
		return fmt.Errorf("%w: %s: %w", errno.ErrLedgerRejected, op, err)
	}
	return fmt.Errorf("%w: %s: %w", errno.ErrLedgerUnavailable, op, err)
}

// classifySend maps SendTransaction errors. A transport failure may still have
// delivered the transaction, so it is reported as an unknown outcome.
func classifySend(op string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case containsAny(err.Error(), unknownMarkers):
		return fmt.Errorf("%w: %s: %w", errno.ErrLedgerTimeout, op, err)
	case containsAny(err.Error(), rejectedMarkers):
		return fmt.Errorf("%w: %s: %w", errno.ErrLedgerRejected, op, err)
	}
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return fmt.Errorf("%w: %s: %w", errno.ErrLedgerRejected, op, err)
	}
	return fmt.Errorf("%w: %s: %w", errno.ErrLedgerTimeout, op, err)
}
