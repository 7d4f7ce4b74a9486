package app

import (
	"agreement-notary/internal/identity"
	"agreement-notary/internal/wallet"

	"go.uber.org/zap"
)

// ConnectKeystore unlocks an encrypted keystore on the active chain and registers the session.
func (a App) ConnectKeystore(keystoreJSON []byte, passphrase string) (wallet.Session, identity.Identity, error) {
	if len(keystoreJSON) == 0 {
		return nil, "", inputError("keystore is missing")
	}

	session, err := wallet.NewKeystoreSession(keystoreJSON, passphrase, a.activeChainID)
	if err != nil {
		a.logger.Warn("wallet connection refused: " + err.Error())
		return nil, "", inputError(err.Error())
	}

	return session, a.sessions.Connect(session, 0), nil
}

// ConnectSession registers an already unlocked session, such as a configured minter key.
func (a App) ConnectSession(session wallet.Session) identity.Identity {
	return a.sessions.Connect(session, -1)
}

func (a App) DisconnectSession(id identity.Identity) {
	a.sessions.Disconnect(id)
	a.logger.Info("wallet session disconnected", zap.String("identity", id.String()))
}
