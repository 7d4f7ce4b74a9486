package certificate

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
)

// certificateABI is the subset of the certificate contract used for minting.
const certificateABI = `[
	{"type":"function","name":"mintTo","stateMutability":"nonpayable",
	 "inputs":[{"name":"to","type":"address"},{"name":"uri","type":"string"}],
	 "outputs":[{"name":"","type":"uint256"}]},
	{"type":"event","name":"Transfer","anonymous":false,
	 "inputs":[{"indexed":true,"name":"from","type":"address"},
	           {"indexed":true,"name":"to","type":"address"},
	           {"indexed":true,"name":"tokenId","type":"uint256"}]}
]`

var (
	ErrReverted  = errors.New("mint transaction reverted")
	ErrTxDropped = errors.New("mint transaction is unknown to the chain")
)

const receiptPollInterval = time.Second

type MintReceipt struct {
	TokenID     *big.Int
	TxHash      common.Hash
	BlockNumber uint64
}

// Chain submits mints to a certificate contract and waits for them to be mined.
type Chain interface {
	SendMint(ctx context.Context, opts *bind.TransactOpts, contract, to common.Address, tokenURI string) (common.Hash, error)
	WaitMint(ctx context.Context, contract common.Address, txHash common.Hash) (MintReceipt, error)
}

type backend interface {
	bind.ContractBackend
	bind.DeployBackend
	TransactionByHash(ctx context.Context, hash common.Hash) (tx *types.Transaction, isPending bool, err error)
}

type EthChain struct {
	logger  *zap.Logger
	backend backend
	abi     abi.ABI
}

// DialEthChain connects to the JSON-RPC endpoint of an EVM chain.
func DialEthChain(ctx context.Context, logger *zap.Logger, rpcURL string) (*EthChain, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, errors.New("failed to dial the chain rpc: " + err.Error())
	}
	return NewEthChain(logger, client)
}

func NewEthChain(logger *zap.Logger, backend backend) (*EthChain, error) {
	parsed, err := abi.JSON(strings.NewReader(certificateABI))
	if err != nil {
		return nil, errors.New("invalid certificate abi: " + err.Error())
	}
	return &EthChain{logger: logger, backend: backend, abi: parsed}, nil
}

func (c *EthChain) SendMint(ctx context.Context, opts *bind.TransactOpts, contract, to common.Address, tokenURI string) (common.Hash, error) {
	bound := bind.NewBoundContract(contract, c.abi, c.backend, c.backend, c.backend)

	opts.Context = ctx
	tx, err := bound.Transact(opts, "mintTo", to, tokenURI)
	if err != nil {
		return common.Hash{}, errors.New("failed to send the mint transaction: " + err.Error())
	}
	c.logger.Debug("mint transaction sent", zap.String("tx", tx.Hash().Hex()), zap.String("contract", contract.Hex()))
	return tx.Hash(), nil
}

// WaitMint polls for the receipt of a sent mint. The returned receipt always carries txHash.
// ErrTxDropped means the node knows neither the receipt nor the transaction.
func (c *EthChain) WaitMint(ctx context.Context, contract common.Address, txHash common.Hash) (MintReceipt, error) {
	pending := MintReceipt{TxHash: txHash}

	receipt, err := c.waitReceipt(ctx, txHash)
	if err != nil {
		return pending, err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return pending, ErrReverted
	}

	tokenID, ok := c.mintedTokenID(contract, receipt)
	if !ok {
		return pending, errors.New("mint receipt carries no Transfer event")
	}

	return MintReceipt{
		TokenID:     tokenID,
		TxHash:      txHash,
		BlockNumber: receipt.BlockNumber.Uint64(),
	}, nil
}

func (c *EthChain) waitReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.backend.TransactionReceipt(ctx, txHash)
		if err == nil {
			return receipt, nil
		}
		if errors.Is(err, ethereum.NotFound) {
			if _, _, lookupErr := c.backend.TransactionByHash(ctx, txHash); errors.Is(lookupErr, ethereum.NotFound) {
				return nil, ErrTxDropped
			}
		} else {
			c.logger.Debug("failed to read the mint receipt: "+err.Error(), zap.String("tx", txHash.Hex()))
		}

		select {
		case <-ctx.Done():
			return nil, errors.New("waiting for the mint transaction failed: " + ctx.Err().Error())
		case <-ticker.C:
		}
	}
}

// mintedTokenID reads the token id from the Transfer event emitted from the zero address.
func (c *EthChain) mintedTokenID(contract common.Address, receipt *types.Receipt) (*big.Int, bool) {
	transfer := c.abi.Events["Transfer"].ID
	for _, event := range receipt.Logs {
		if event.Address != contract || len(event.Topics) != 4 || event.Topics[0] != transfer {
			continue
		}
		if common.BytesToAddress(event.Topics[1].Bytes()) != (common.Address{}) {
			continue
		}
		return new(big.Int).SetBytes(event.Topics[3].Bytes()), true
	}
	return nil, false
}
