package main

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/redis/go-redis/v9"

	"github.com/hexlane/authgate/adapters/auditcache"
	"github.com/hexlane/authgate/adapters/events"
	"github.com/hexlane/authgate/adapters/registry"
	"github.com/hexlane/authgate/adapters/store"
	"github.com/hexlane/authgate/adapters/tokenizer"
	"github.com/hexlane/authgate/adapters/wallet"
	"github.com/hexlane/authgate/internal/slogx"
	"github.com/hexlane/authgate/ports"
	"github.com/hexlane/authgate/service"
	transport "github.com/hexlane/authgate/transport/http"
)

const version = "0.1.0"

func main() {
	cfg := LoadConfig()

	logger := slogx.New(slogx.Config{
		Service: "authgate",
		Version: version,
		Env:     cfg.Env,
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
	})
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Marker signing key. Ephemeral: restarting the process invalidates
	// outstanding marker tokens.
	signKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return fmt.Errorf("failed to generate marker signing key: %w", err)
	}
	tok := tokenizer.NewJWTTokenizer(signKey)

	var (
		markers   ports.MarkerStore
		publisher message.Publisher
	)
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("failed to parse Redis URL: %w", err)
		}
		client := redis.NewClient(opts)
		markers = store.NewRedisStore(client)

		publisher, err = redisstream.NewPublisher(
			redisstream.PublisherConfig{Client: client},
			watermill.NewSlogLogger(logger),
		)
		if err != nil {
			return fmt.Errorf("failed to create Redis publisher: %w", err)
		}
	} else {
		markers = store.NewMemoryStore()
		publisher = gochannel.NewGoChannel(gochannel.Config{}, watermill.NewSlogLogger(logger))
	}
	eventPub := events.NewWatermillPublisher(publisher)

	// Wallet account. A dev key is generated unless one is provided.
	w := wallet.NewLocalWallet()
	var accountKey *ecdsa.PrivateKey
	if cfg.PrivateKey != "" {
		accountKey, err = crypto.HexToECDSA(cfg.PrivateKey)
		if err != nil {
			return fmt.Errorf("failed to parse account key: %w", err)
		}
	} else {
		accountKey, err = crypto.GenerateKey()
		if err != nil {
			return fmt.Errorf("failed to generate account key: %w", err)
		}
	}
	account := w.AddKey(accountKey)
	logger.Info("wallet account ready", "address", account.Hex())

	var (
		dial   service.RegistryDialer
		source ports.AuditSource
		reader ports.Registry
	)
	if cfg.RPCURL != "" {
		if !common.IsHexAddress(cfg.ContractAddress) {
			return errors.New("CONTRACT_ADDRESS is required with RPC_URL")
		}
		client, err := ethclient.Dial(cfg.RPCURL)
		if err != nil {
			return fmt.Errorf("failed to dial Ethereum node: %w", err)
		}
		w.WithBalanceSource(client)

		ethReg, err := registry.NewEthRegistry(client, common.HexToAddress(cfg.ContractAddress), accountKey, big.NewInt(cfg.ChainID))
		if err != nil {
			return fmt.Errorf("failed to bind registry contract: %w", err)
		}
		dial = func(common.Address) ports.Registry { return ethReg }
		source = ethReg
		reader = ethReg
	} else {
		ownerKey, err := crypto.GenerateKey()
		if err != nil {
			return fmt.Errorf("failed to generate dev owner key: %w", err)
		}
		owner := crypto.PubkeyToAddress(ownerKey.PublicKey)
		memReg := registry.NewMemoryRegistry(owner)
		dial = memReg.ForCaller
		source = memReg
		reader = memReg.ForCaller(owner)
		logger.Info("running with in-process registry", "owner", owner.Hex())
	}

	cache, err := auditcache.NewStore(cfg.AuditCacheFile)
	if err != nil {
		return fmt.Errorf("failed to open audit cache: %w", err)
	}
	defer cache.Close()
	if err := cache.ApplyMigrations(); err != nil {
		return fmt.Errorf("failed to migrate audit cache: %w", err)
	}

	var issuer service.OTPIssuer
	if cfg.TOTPSecret != "" {
		issuer = service.TOTPIssuer{Secret: cfg.TOTPSecret}
	}

	sessions := service.NewSessionManager(w, dial, service.Config{
		Markers:        markers,
		Tokenizer:      tok,
		Events:         eventPub,
		Logger:         logger,
		OTP:            issuer,
		ConfirmTimeout: cfg.ConfirmTimeout,
		MarkerTTL:      cfg.MarkerTTL,
	})
	defer sessions.Close()

	audit := service.NewAuditService(source, reader, cache, logger)

	router := transport.SetupRouter(transport.NewSessionHandlers(sessions, audit), tok, markers, logger)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
