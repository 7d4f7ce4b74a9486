package main

import (
	"agreement-notary/internal/app"
	"agreement-notary/internal/certificate"
	"agreement-notary/internal/config"
	"agreement-notary/internal/dag"
	"agreement-notary/internal/ledger"
	"agreement-notary/internal/ports/http"
	"agreement-notary/internal/ports/http/middleware/auth"
	"agreement-notary/internal/repository/mongodb"
	"agreement-notary/internal/saga"
	"agreement-notary/internal/vault"
	"agreement-notary/internal/wallet"
	"context"
	"log"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	logger, err := getLogger()
	if err != nil {
		log.Fatalln("setting up the logger failed: ", err)
		return
	}
	defer logger.Sync()

	if err := config.Load(os.Getenv("CONFIG_FILE")); err != nil {
		logger.Fatal("failed to read the config file: " + err.Error())
	}

	logger.Info("application started")

	agreements, proofVault, states, closeStorage := openStorage(logger)
	defer closeStorage()

	vaultClient := vault.NewClient(logger, proofVault, config.GetStepTimeout())
	validator := dag.NewClient(logger, config.GetDagNodeURL(), config.GetDagExplorerURL(), config.GetDagNetwork(), config.GetStepTimeout())
	minter := newMinter(logger)

	orchestrator := saga.NewOrchestrator(logger, agreements, vaultClient, validator, minter, states, config.GetStepTimeout())
	sessions := wallet.NewRegistry(logger, config.GetSessionTTL())

	a := app.NewApp(logger, agreements, vaultClient, orchestrator, sessions, validator, minter, config.GetActiveChainID())
	connectMinterKeys(logger, a)

	validatorAuth := auth.NewTokenValidator(logger, auth.JwtTokenParams{Issuer: config.GetAuthIssuer()})
	ser := http.NewServer(logger, &a, config.GetPort(), validatorAuth, config.GetRequestTimeout())
	if err := ser.Run(); err != nil {
		logger.Error("failed to run the server: " + err.Error())
	}

	logger.Info("application finished")
}

// openStorage selects the ledger backend; the in-memory one keeps nothing across restarts.
func openStorage(logger *zap.Logger) (ledger.AgreementStore, ledger.ProofVault, saga.StateStore, func()) {
	if config.GetStorageBackend() == config.StorageMemory {
		logger.Warn("using in-memory storage, agreements and proofs are lost on restart")
		return ledger.NewMemoryAgreementStore(), ledger.NewMemoryProofVault(), saga.NewMemoryStateStore(), func() {}
	}

	repo, err := mongodb.NewConnection(logger, config.GetDbConnectionURI(), config.GetDatabaseName())
	if err != nil {
		logger.Fatal("failed to connect to the database: " + err.Error())
	}
	return repo.Agreements(), repo.Proofs(), repo.Finalizations(), repo.Disconnect
}

// newMinter registers every chain with a configured RPC endpoint.
func newMinter(logger *zap.Logger) *certificate.Minter {
	minter := certificate.NewMinter(logger, config.GetCertificateImage(), config.GetPublicURL(), config.GetMintTimeout())

	for _, chainID := range config.GetSupportedChains() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		chain, err := certificate.DialEthChain(ctx, logger, config.GetChainRPCURL(chainID))
		cancel()
		if err != nil {
			logger.Error("skipping chain: "+err.Error(), zap.Int64("chainID", chainID))
			continue
		}

		if err := minter.AddChain(chainID, chain, config.GetCertificateContract(chainID)); err != nil {
			logger.Error("skipping chain: "+err.Error(), zap.Int64("chainID", chainID))
			continue
		}
		logger.Info("chain registered", zap.Int64("chainID", chainID), zap.Bool("certificateContract", minter.ContractDeployed(chainID)))
	}

	logger.Info("certificate chains", zap.Int64s("chainIDs", minter.ChainsWithContracts()))
	if !minter.ContractDeployed(config.GetActiveChainID()) {
		logger.Warn("no certificate contract on the active chain, finalizations will stop at the mint step",
			zap.Int64("chainID", config.GetActiveChainID()))
	}
	return minter
}

// connectMinterKeys keeps the configured service wallets connected for the process lifetime.
func connectMinterKeys(logger *zap.Logger, a app.App) {
	for _, key := range config.GetMinterKeys() {
		session, err := wallet.NewHexKeySession(key, config.GetActiveChainID())
		if err != nil {
			logger.Error("ignoring a minter key: " + err.Error())
			continue
		}
		a.ConnectSession(session)
	}
}

func getLogger() (*zap.Logger, error) {
	options := []zap.Option{
		zap.AddCaller(),
		zap.AddStacktrace(zap.FatalLevel),
	}

	config := zap.NewDevelopmentConfig()
	config.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout(time.RFC3339)
	config.Development = true
	config.Level.SetLevel(zap.DebugLevel)

	logger, err := config.Build()
	return logger.WithOptions(options...), err
}
