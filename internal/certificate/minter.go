package certificate

import (
	"agreement-notary/internal/wallet"
	"context"
	"errors"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sasha-s/go-deadlock"
	"go.uber.org/zap"
)

// MintResult reports the outcome of a mint. Failures never leave Mint as a Go error.
// Precondition is set when the user has to act (connect a wallet, pick a supported chain)
// instead of retrying. NotMinted is set when TxRef is known not to have minted a token.
type MintResult struct {
	Success      bool
	TokenID      string
	TxRef        string
	BlockNumber  uint64
	Error        string
	Precondition bool
	NotMinted    bool
}

type Minter struct {
	logger       *zap.Logger
	image        string
	externalBase string
	timeout      time.Duration

	mu        *deadlock.RWMutex
	chains    map[int64]Chain
	contracts map[int64]common.Address
}

func NewMinter(logger *zap.Logger, image, externalBase string, timeout time.Duration) *Minter {
	return &Minter{
		logger:       logger,
		image:        image,
		externalBase: externalBase,
		timeout:      timeout,
		mu:           &deadlock.RWMutex{},
		chains:       make(map[int64]Chain),
		contracts:    make(map[int64]common.Address),
	}
}

// AddChain registers the backend and certificate contract of a chain.
// An empty contract registers the chain without a deployed certificate.
func (m *Minter) AddChain(chainID int64, chain Chain, contract string) error {
	if chainID <= 0 || chain == nil {
		return errors.New("invalid chain registration")
	}
	if contract != "" && !common.IsHexAddress(contract) {
		return errors.New("invalid certificate contract address: " + contract)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.chains[chainID] = chain
	if contract != "" {
		m.contracts[chainID] = common.HexToAddress(contract)
	}
	return nil
}

func (m *Minter) ContractDeployed(chainID int64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.contracts[chainID]
	return ok
}

func (m *Minter) ChainsWithContracts() []int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	chains := make([]int64, 0, len(m.contracts))
	for id := range m.contracts {
		chains = append(chains, id)
	}
	sort.Slice(chains, func(i, j int) bool { return chains[i] < chains[j] })
	return chains
}

// Mint mints a certificate to the session's account on the session's chain.
// sent, if set, receives the transaction reference as soon as the mint is submitted.
func (m *Minter) Mint(ctx context.Context, session wallet.Session, metadata CertificateMetadata, sent func(txRef string)) MintResult {
	if session == nil {
		return preconditionFailure("no wallet connected: connect a wallet to mint the certificate")
	}

	chainID := session.ChainID()
	chain, contract, failure, ok := m.lookup(chainID)
	if !ok {
		return failure
	}

	uri, err := TokenURI(BuildDocument(metadata, m.image, m.externalBase))
	if err != nil {
		return MintResult{Success: false, Error: err.Error()}
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	opts, err := session.Transactor(ctx)
	if err != nil {
		return preconditionFailure("the wallet session cannot sign: " + err.Error())
	}

	m.logger.Info("minting certificate",
		zap.String("agreementID", metadata.AgreementID),
		zap.Int64("chainID", chainID),
		zap.String("contract", contract.Hex()),
		zap.String("to", session.Address().Hex()))

	txHash, err := chain.SendMint(ctx, opts, contract, session.Address(), uri)
	if err != nil {
		m.logger.Error("mint failed: "+err.Error(), zap.String("agreementID", metadata.AgreementID))
		return MintResult{Success: false, Error: "minting failed: " + err.Error(), NotMinted: true}
	}
	if sent != nil {
		sent(txHash.Hex())
	}

	return m.settle(ctx, chain, contract, txHash)
}

// Resume waits for a mint submitted earlier on chainID instead of minting again.
func (m *Minter) Resume(ctx context.Context, chainID int64, txRef string) MintResult {
	if len(common.FromHex(txRef)) != common.HashLength {
		return MintResult{Success: false, Error: "invalid mint transaction reference: " + txRef, NotMinted: true}
	}

	chain, contract, failure, ok := m.lookup(chainID)
	if !ok {
		return failure
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	m.logger.Info("resuming certificate mint", zap.Int64("chainID", chainID), zap.String("tx", txRef))
	return m.settle(ctx, chain, contract, common.HexToHash(txRef))
}

func (m *Minter) lookup(chainID int64) (Chain, common.Address, MintResult, bool) {
	m.mu.RLock()
	chain, hasChain := m.chains[chainID]
	contract, hasContract := m.contracts[chainID]
	m.mu.RUnlock()

	if !hasChain {
		return nil, common.Address{}, preconditionFailure("chain " + formatChainID(chainID) + " is not supported"), false
	}
	if !hasContract {
		return nil, common.Address{}, preconditionFailure("no certificate contract deployed on chain " + formatChainID(chainID)), false
	}
	return chain, contract, MintResult{}, true
}

func (m *Minter) settle(ctx context.Context, chain Chain, contract common.Address, txHash common.Hash) MintResult {
	receipt, err := chain.WaitMint(ctx, contract, txHash)
	if err != nil {
		m.logger.Error("mint failed: "+err.Error(), zap.String("tx", txHash.Hex()))
		return MintResult{
			Success:   false,
			TxRef:     txHash.Hex(),
			Error:     "minting failed: " + err.Error(),
			NotMinted: errors.Is(err, ErrReverted) || errors.Is(err, ErrTxDropped),
		}
	}

	return MintResult{
		Success:     true,
		TokenID:     receipt.TokenID.String(),
		TxRef:       txHash.Hex(),
		BlockNumber: receipt.BlockNumber,
	}
}

func preconditionFailure(message string) MintResult {
	return MintResult{Success: false, Error: message, Precondition: true}
}
