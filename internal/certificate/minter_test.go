package certificate_test

import (
	"agreement-notary/internal/certificate"
	"agreement-notary/internal/identity"
	"agreement-notary/internal/wallet"
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	devKey   = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	contract = "0x5FbDB2315678afecb367f032d93F642f64180aa3"
	chainID  = int64(84532)
)

type fakeChain struct {
	calls    int
	waits    int
	uri      string
	to       common.Address
	contract common.Address
	sendErr  error
	waitErr  error
}

func (c *fakeChain) SendMint(_ context.Context, opts *bind.TransactOpts, contract, to common.Address, tokenURI string) (common.Hash, error) {
	c.calls++
	c.uri = tokenURI
	c.to = to
	c.contract = contract
	if c.sendErr != nil {
		return common.Hash{}, c.sendErr
	}
	return common.HexToHash("0x01"), nil
}

func (c *fakeChain) WaitMint(_ context.Context, contract common.Address, txHash common.Hash) (certificate.MintReceipt, error) {
	c.waits++
	if c.waitErr != nil {
		return certificate.MintReceipt{TxHash: txHash}, c.waitErr
	}
	return certificate.MintReceipt{
		TokenID:     big.NewInt(7),
		TxHash:      txHash,
		BlockNumber: 42,
	}, nil
}

func testMetadata() certificate.CertificateMetadata {
	return certificate.CertificateMetadata{
		AgreementID: "agreement-1",
		Title:       "Lease",
		ContentHash: "abc",
		DagHash:     "dag_123",
		Parties:     []identity.Identity{"aaaaa-aa", "2vxsx-fae"},
		CreatedAt:   time.Unix(1700000000, 0),
		SignedAt:    time.Unix(1700000100, 0),
	}
}

func testSession(t *testing.T, chain int64) wallet.Session {
	session, err := wallet.NewHexKeySession(devKey, chain)
	require.NoError(t, err)
	return session
}

func TestMint(t *testing.T) {
	chain := &fakeChain{}
	minter := certificate.NewMinter(zap.NewNop(), "https://img", "https://app", time.Second)
	require.NoError(t, minter.AddChain(chainID, chain, contract))

	session := testSession(t, chainID)
	var sent string
	result := minter.Mint(context.Background(), session, testMetadata(), func(txRef string) { sent = txRef })

	require.True(t, result.Success, result.Error)
	assert.Equal(t, "7", result.TokenID)
	assert.Equal(t, common.HexToHash("0x01").Hex(), result.TxRef)
	assert.Equal(t, result.TxRef, sent)
	assert.Equal(t, uint64(42), result.BlockNumber)
	assert.Equal(t, session.Address(), chain.to)
	assert.Equal(t, common.HexToAddress(contract), chain.contract)

	document, err := certificate.DecodeTokenURI(chain.uri)
	require.NoError(t, err)
	assert.Equal(t, "Agreement Certificate: Lease", document.Name)
	assert.Equal(t, "https://img", document.Image)
	assert.Equal(t, "https://app/agreements/agreement-1", document.ExternalURL)
	assert.Equal(t, "dag_123", document.Properties.ConstellationDagHash)
}

func TestMintWithoutSession(t *testing.T) {
	chain := &fakeChain{}
	minter := certificate.NewMinter(zap.NewNop(), "", "", time.Second)
	require.NoError(t, minter.AddChain(chainID, chain, contract))

	result := minter.Mint(context.Background(), nil, testMetadata(), nil)
	assert.False(t, result.Success)
	assert.True(t, result.Precondition)
	assert.Zero(t, chain.calls)
}

func TestMintWithoutContract(t *testing.T) {
	chain := &fakeChain{}
	minter := certificate.NewMinter(zap.NewNop(), "", "", time.Second)
	require.NoError(t, minter.AddChain(chainID, chain, ""))

	assert.False(t, minter.ContractDeployed(chainID))

	result := minter.Mint(context.Background(), testSession(t, chainID), testMetadata(), nil)
	assert.False(t, result.Success)
	assert.True(t, result.Precondition)
	assert.Contains(t, result.Error, "no certificate contract")

	result = minter.Mint(context.Background(), testSession(t, 1), testMetadata(), nil)
	assert.True(t, result.Precondition)
	assert.Zero(t, chain.calls)
}

func TestMintChainFailure(t *testing.T) {
	chain := &fakeChain{sendErr: errors.New("execution reverted")}
	minter := certificate.NewMinter(zap.NewNop(), "", "", time.Second)
	require.NoError(t, minter.AddChain(chainID, chain, contract))

	result := minter.Mint(context.Background(), testSession(t, chainID), testMetadata(), nil)
	assert.False(t, result.Success)
	assert.False(t, result.Precondition)
	assert.True(t, result.NotMinted)
	assert.Empty(t, result.TxRef)
	assert.Contains(t, result.Error, "execution reverted")
}

func TestMintUnconfirmedKeepsTxRef(t *testing.T) {
	chain := &fakeChain{waitErr: errors.New("waiting for the mint transaction failed: context deadline exceeded")}
	minter := certificate.NewMinter(zap.NewNop(), "", "", time.Second)
	require.NoError(t, minter.AddChain(chainID, chain, contract))

	var sent string
	result := minter.Mint(context.Background(), testSession(t, chainID), testMetadata(), func(txRef string) { sent = txRef })
	assert.False(t, result.Success)
	assert.False(t, result.NotMinted)
	assert.Equal(t, common.HexToHash("0x01").Hex(), result.TxRef)
	assert.Equal(t, result.TxRef, sent)

	chain.waitErr = nil
	result = minter.Resume(context.Background(), chainID, sent)
	require.True(t, result.Success, result.Error)
	assert.Equal(t, "7", result.TokenID)
	assert.Equal(t, 1, chain.calls)
	assert.Equal(t, 2, chain.waits)
}

func TestResumeReportsNotMinted(t *testing.T) {
	txRef := common.HexToHash("0x02").Hex()
	for _, tc := range []struct {
		name      string
		err       error
		notMinted bool
	}{
		{"reverted", certificate.ErrReverted, true},
		{"dropped", certificate.ErrTxDropped, true},
		{"unconfirmed", errors.New("waiting for the mint transaction failed: context canceled"), false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			chain := &fakeChain{waitErr: tc.err}
			minter := certificate.NewMinter(zap.NewNop(), "", "", time.Second)
			require.NoError(t, minter.AddChain(chainID, chain, contract))

			result := minter.Resume(context.Background(), chainID, txRef)
			assert.False(t, result.Success)
			assert.Equal(t, tc.notMinted, result.NotMinted)
			assert.Equal(t, txRef, result.TxRef)
			assert.Zero(t, chain.calls)
		})
	}

	minter := certificate.NewMinter(zap.NewNop(), "", "", time.Second)
	result := minter.Resume(context.Background(), chainID, txRef)
	assert.True(t, result.Precondition)
}

func TestChainsWithContracts(t *testing.T) {
	minter := certificate.NewMinter(zap.NewNop(), "", "", time.Second)
	require.NoError(t, minter.AddChain(11155111, &fakeChain{}, contract))
	require.NoError(t, minter.AddChain(84532, &fakeChain{}, contract))
	require.NoError(t, minter.AddChain(1, &fakeChain{}, ""))

	assert.Equal(t, []int64{84532, 11155111}, minter.ChainsWithContracts())
	assert.Error(t, minter.AddChain(5, &fakeChain{}, "not-an-address"))
}

func TestBuildDocument(t *testing.T) {
	metadata := testMetadata()
	metadata.DagHash = ""

	document := certificate.BuildDocument(metadata, "img", "")
	assert.Equal(t, "", document.ExternalURL)
	assert.Equal(t, "pending", document.Properties.ConstellationDagHash)
	assert.Equal(t, []string{"aaaaa-aa", "2vxsx-fae"}, document.Properties.Parties)

	traits := make(map[string]certificate.Attribute)
	for _, attribute := range document.Attributes {
		traits[attribute.TraitType] = attribute
	}
	assert.Equal(t, "agreement-1", traits["Agreement_ID"].Value)
	assert.Equal(t, "abc", traits["Content_Hash"].Value)
	assert.Equal(t, "pending", traits["Constellation_DAG"].Value)
	assert.Equal(t, 2, traits["Parties"].Value)
	assert.Equal(t, "date", traits["Signed_At"].DisplayType)
	assert.Equal(t, int64(1700000100), traits["Signed_At"].Value)
}

func TestDecodeTokenURIErrors(t *testing.T) {
	_, err := certificate.DecodeTokenURI("ipfs://x")
	assert.Error(t, err)

	_, err = certificate.DecodeTokenURI("data:application/json;base64,!!!")
	assert.Error(t, err)
}
