package ledger

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vishesh2305/DAAN/internal/campaign"
	"github.com/vishesh2305/DAAN/pkg/errno"
)

type chainCampaign struct {
	owner       common.Address
	title       string
	description string
	target      *big.Int
	deadline    *big.Int
	collected   *big.Int
	image       string
	claimed     bool
	donors      []common.Address
	amounts     []*big.Int
}

// fakeChain executes CrowdFunding calls in memory. With mine unset, sent
// transactions stay pending and never produce a receipt.
type fakeChain struct {
	mu          sync.Mutex
	signer      types.Signer
	mine        bool
	campaigns   []*chainCampaign
	receipts    map[common.Hash]*types.Receipt
	pending     map[uint64]*types.Transaction
	nextNonce   uint64
	sentNonces  []uint64
	estimateErr error
	blockTime   time.Time
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		signer:    types.LatestSignerForChainID(big.NewInt(1337)),
		mine:      true,
		receipts:  make(map[common.Hash]*types.Receipt),
		pending:   make(map[uint64]*types.Transaction),
		blockTime: time.Unix(1767225600, 0),
	}
}

func (f *fakeChain) ChainID(ctx context.Context) (*big.Int, error) { return big.NewInt(1337), nil }

func (f *fakeChain) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	return &types.Header{Number: big.NewInt(42), Time: uint64(f.blockTime.Unix())}, nil
}

func (f *fakeChain) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	if f.estimateErr != nil {
		return 0, f.estimateErr
	}
	return 120000, nil
}

func (f *fakeChain) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (f *fakeChain) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nextNonce + uint64(len(f.pending)), nil
}

func (f *fakeChain) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.receipts[hash]; ok {
		return r, nil
	}
	return nil, ethereum.NotFound
}

func (f *fakeChain) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if tx.Nonce() < f.nextNonce {
		return errors.New("nonce too low")
	}
	f.sentNonces = append(f.sentNonces, tx.Nonce())
	if !f.mine {
		f.pending[tx.Nonce()] = tx
		return nil
	}
	delete(f.pending, tx.Nonce())
	f.nextNonce = tx.Nonce() + 1

	from, err := types.Sender(f.signer, tx)
	if err != nil {
		return err
	}
	status := types.ReceiptStatusSuccessful
	if !f.apply(from, tx.Data()) {
		status = types.ReceiptStatusFailed
	}
	f.receipts[tx.Hash()] = &types.Receipt{Status: status, TxHash: tx.Hash()}
	return nil
}

func (f *fakeChain) apply(from common.Address, data []byte) bool {
	method, err := contractABI.MethodById(data[:4])
	if err != nil {
		return false
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return false
	}
	switch method.Name {
	case "createCampaign":
		f.campaigns = append(f.campaigns, &chainCampaign{
			owner:       args[0].(common.Address),
			title:       args[1].(string),
			description: args[2].(string),
			target:      args[3].(*big.Int),
			deadline:    args[4].(*big.Int),
			image:       args[5].(string),
			collected:   new(big.Int),
		})
		return true
	case "claimFunds":
		c := f.campaigns[args[0].(*big.Int).Uint64()]
		if c.owner != from || c.claimed {
			return false
		}
		c.claimed = true
		return true
	}
	return false
}

func (f *fakeChain) CallContract(ctx context.Context, msg ethereum.CallMsg, block *big.Int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	method, err := contractABI.MethodById(msg.Data[:4])
	if err != nil {
		return nil, err
	}
	args, err := method.Inputs.Unpack(msg.Data[4:])
	if err != nil {
		return nil, err
	}
	switch method.Name {
	case "numberofCampaigns":
		return method.Outputs.Pack(big.NewInt(int64(len(f.campaigns))))
	case "campaigns":
		c := f.campaigns[args[0].(*big.Int).Uint64()]
		return method.Outputs.Pack(c.owner, c.title, c.description, c.target, c.deadline, c.collected, c.image, c.claimed)
	case "getDonators":
		c := f.campaigns[args[0].(*big.Int).Uint64()]
		donors := append([]common.Address{}, c.donors...)
		amounts := append([]*big.Int{}, c.amounts...)
		return method.Outputs.Pack(donors, amounts)
	}
	return nil, errors.New("unsupported call " + method.Name)
}

func (f *fakeChain) donate(id uint64, donor common.Address, wei *big.Int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.campaigns[id]
	c.donors = append(c.donors, donor)
	c.amounts = append(c.amounts, wei)
	c.collected = new(big.Int).Add(c.collected, wei)
}

func newTestGateway(t *testing.T, chain *fakeChain, now *time.Time) (*EthGateway, *ecdsa.PrivateKey) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	ring, err := NewKeyRing(key)
	require.NoError(t, err)

	g, err := NewEthGateway(t.Context(), chain, common.HexToAddress("0xC0ffee254729296a45a3885639AC7E10F9d54979"), ring, EthOptions{
		ConfirmTimeout: 80 * time.Millisecond,
		PollInterval:   5 * time.Millisecond,
		Now:            func() time.Time { return *now },
	})
	require.NoError(t, err)
	return g, key
}

func TestEthGatewayCreateAndRead(t *testing.T) {
	now := time.Unix(1767225600, 0)
	chain := newFakeChain()
	g, key := newTestGateway(t, chain, &now)
	owner := crypto.PubkeyToAddress(key.PublicKey).Hex()

	d := testDraft(now.Add(24 * time.Hour))
	d.Owner = owner
	d.Image = "https://example.org/garden.png"

	id, err := g.CreateCampaign(t.Context(), d)
	require.NoError(t, err)
	assert.Equal(t, campaign.ID(0), id)

	s, err := g.GetCampaign(t.Context(), id)
	require.NoError(t, err)
	assert.Equal(t, owner, s.Owner)
	assert.Equal(t, "Community Garden", s.Title)
	assert.True(t, s.Target.Equal(decimal.NewFromInt(5)))
	assert.Equal(t, d.Deadline.Unix(), s.Deadline.Unix())
	assert.Equal(t, d.Image, s.Image)

	_, err = g.GetCampaign(t.Context(), 3)
	assert.True(t, errors.Is(err, errno.ErrCampaignNotFound))

	all, err := g.ListCampaigns(t.Context())
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestEthGatewayTimeoutThenResubmitReusesNonce(t *testing.T) {
	now := time.Unix(1767225600, 0)
	chain := newFakeChain()
	chain.mine = false
	g, key := newTestGateway(t, chain, &now)

	d := testDraft(now.Add(time.Hour))
	d.Owner = crypto.PubkeyToAddress(key.PublicKey).Hex()

	_, err := g.CreateCampaign(t.Context(), d)
	require.True(t, errors.Is(err, errno.ErrLedgerTimeout), "got %v", err)

	_, found, err := g.FindCampaign(t.Context(), d.Key())
	require.NoError(t, err)
	assert.False(t, found)

	chain.mine = true
	id, err := g.CreateCampaign(t.Context(), d)
	require.NoError(t, err)
	assert.Equal(t, campaign.ID(0), id)
	assert.Equal(t, []uint64{0, 0}, chain.sentNonces)
	assert.Len(t, chain.campaigns, 1)
}

func TestEthGatewayRevertedEstimateIsRejected(t *testing.T) {
	now := time.Unix(1767225600, 0)
	chain := newFakeChain()
	chain.estimateErr = errors.New("execution reverted: deadline must be in the future")
	g, key := newTestGateway(t, chain, &now)

	d := testDraft(now.Add(time.Hour))
	d.Owner = crypto.PubkeyToAddress(key.PublicKey).Hex()

	_, err := g.CreateCampaign(t.Context(), d)
	assert.True(t, errors.Is(err, errno.ErrLedgerRejected), "got %v", err)
	assert.Empty(t, chain.sentNonces)
}

func TestEthGatewayClaim(t *testing.T) {
	deadline := time.Unix(1767225600, 0)
	now := deadline.Add(-time.Minute)
	chain := newFakeChain()
	g, key := newTestGateway(t, chain, &now)
	owner := crypto.PubkeyToAddress(key.PublicKey)

	d := testDraft(deadline)
	d.Owner = owner.Hex()
	id, err := g.CreateCampaign(t.Context(), d)
	require.NoError(t, err)

	chain.donate(uint64(id), common.HexToAddress(donorAddr), ToWei(decimal.NewFromInt(2)))
	chain.donate(uint64(id), common.HexToAddress(donorAddr), ToWei(decimal.NewFromInt(1)))

	_, err = g.Claim(t.Context(), id, donorAddr)
	assert.True(t, errors.Is(err, errno.ErrNotOwner))

	_, err = g.Claim(t.Context(), id, owner.Hex())
	assert.True(t, errors.Is(err, errno.ErrNotExpired))

	now = deadline.Add(time.Second)
	r, err := g.Claim(t.Context(), id, owner.Hex())
	require.NoError(t, err)
	assert.True(t, r.Amount.Equal(decimal.NewFromInt(3)))
	assert.NotEmpty(t, r.TxHash)

	_, err = g.Claim(t.Context(), id, owner.Hex())
	assert.True(t, errors.Is(err, errno.ErrAlreadyClaimed))
}

func TestEthGatewayGetDonors(t *testing.T) {
	now := time.Unix(1767225600, 0)
	chain := newFakeChain()
	g, key := newTestGateway(t, chain, &now)

	d := testDraft(now.Add(time.Hour))
	d.Owner = crypto.PubkeyToAddress(key.PublicKey).Hex()
	id, err := g.CreateCampaign(t.Context(), d)
	require.NoError(t, err)
	chain.donate(uint64(id), common.HexToAddress(donorAddr), ToWei(decimal.RequireFromString("0.5")))

	donors, err := g.GetDonors(t.Context(), id)
	require.NoError(t, err)
	require.Len(t, donors, 1)
	assert.Equal(t, common.HexToAddress(donorAddr).Hex(), donors[0].Donor)
	assert.True(t, donors[0].Amount.Equal(decimal.RequireFromString("0.5")))
	assert.Equal(t, chain.blockTime.Unix(), donors[0].ConfirmedAt.Unix())
}

func TestClassifySend(t *testing.T) {
	tests := []struct {
		err  error
		want error
	}{
		{errors.New("nonce too low"), errno.ErrLedgerTimeout},
		{errors.New("already known"), errno.ErrLedgerTimeout},
		{errors.New("insufficient funds for gas * price + value"), errno.ErrLedgerRejected},
		{errors.New("connection reset by peer"), errno.ErrLedgerTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.True(t, errors.Is(classifySend("op", tt.err), tt.want))
		})
	}
	assert.NoError(t, classifySend("op", nil))
}

func TestClassifyRead(t *testing.T) {
	assert.True(t, errors.Is(classifyRead("op", errors.New("dial tcp: connection refused")), errno.ErrLedgerUnavailable))
	assert.True(t, errors.Is(classifyRead("op", errors.New("execution reverted")), errno.ErrLedgerRejected))
}
