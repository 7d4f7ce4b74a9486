package wallet

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Session is a connected signing credential able to pay gas on one chain.
// The finalization reads it and never mutates it.
type Session interface {
	Address() common.Address
	ChainID() int64
	Transactor(ctx context.Context) (*bind.TransactOpts, error)
}

// KeyedSession signs with a private key held in memory.
type KeyedSession struct {
	key     *ecdsa.PrivateKey
	address common.Address
	chainID int64
}

func NewKeyedSession(key *ecdsa.PrivateKey, chainID int64) (*KeyedSession, error) {
	if key == nil {
		return nil, errors.New("missing private key")
	}
	if chainID <= 0 {
		return nil, errors.New("invalid chain id")
	}

	return &KeyedSession{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		chainID: chainID,
	}, nil
}

// NewHexKeySession parses a hex private key, with or without the 0x prefix.
func NewHexKeySession(hexKey string, chainID int64) (*KeyedSession, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, errors.New("failed to parse the private key: " + err.Error())
	}
	return NewKeyedSession(key, chainID)
}

// NewKeystoreSession decrypts an encrypted JSON keystore file.
func NewKeystoreSession(keyJSON []byte, passphrase string, chainID int64) (*KeyedSession, error) {
	key, err := keystore.DecryptKey(keyJSON, passphrase)
	if err != nil {
		return nil, errors.New("failed to decrypt the keystore: " + err.Error())
	}
	return NewKeyedSession(key.PrivateKey, chainID)
}

func (s *KeyedSession) Address() common.Address {
	return s.address
}

func (s *KeyedSession) ChainID() int64 {
	return s.chainID
}

func (s *KeyedSession) Transactor(ctx context.Context) (*bind.TransactOpts, error) {
	opts, err := bind.NewKeyedTransactorWithChainID(s.key, big.NewInt(s.chainID))
	if err != nil {
		return nil, err
	}
	opts.Context = ctx
	return opts, nil
}
