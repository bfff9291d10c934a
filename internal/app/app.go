package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/AronBks/blockchain-mensajes-dapp/internal/api"
	"github.com/AronBks/blockchain-mensajes-dapp/internal/config"
	"github.com/AronBks/blockchain-mensajes-dapp/internal/ledger"
	"github.com/AronBks/blockchain-mensajes-dapp/internal/logging"
	"github.com/AronBks/blockchain-mensajes-dapp/internal/pinning"
	"github.com/AronBks/blockchain-mensajes-dapp/internal/service"
	"github.com/AronBks/blockchain-mensajes-dapp/internal/storage/archivepg"
	"github.com/AronBks/blockchain-mensajes-dapp/internal/wallet"
)

// Application wires the sync engine: wallet bridge, session binder, log
// cache, submission pipeline, optional archive and the HTTP surface.
type Application struct {
	Server  *http.Server
	Bridge  *wallet.Bridge
	Binder  *service.Binder
	Cache   *service.LogCache
	Archive *archivepg.Store

	walletPoll time.Duration
	cancelLoop context.CancelFunc
	logger     *slog.Logger
}

func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Application, error) {
	var archive *archivepg.Store
	if cfg.Archive.PostgresDSN != "" {
		var err error
		archive, err = archivepg.Open(ctx, cfg.Archive.PostgresDSN, cfg.Archive.MaxConns, cfg.Archive.MinConns)
		if err != nil {
			return nil, fmt.Errorf("open archive store: %w", err)
		}
	}
	var archiver service.Archiver
	if archive != nil {
		archiver = archive
	}

	bridge := wallet.NewBridge(cfg.Wallet.BridgeURL, time.Duration(cfg.Wallet.TimeoutSeconds)*time.Second, logger)
	uploader := pinning.NewClient(cfg.Pinning.Endpoint, cfg.Pinning.Token, time.Duration(cfg.Pinning.TimeoutSeconds)*time.Second)

	cache := service.NewLogCache(time.Duration(cfg.Sync.PollIntervalSeconds)*time.Second, archiver, logger)
	submitter := service.NewSubmitter(cache, uploader, archiver, time.Duration(cfg.Sync.SettleDelayMillis)*time.Millisecond, logger)

	gatewayTimeout := time.Duration(cfg.Gateway.TimeoutSeconds) * time.Second
	factory := func(contractAddr string) ledger.Client {
		return ledger.NewGatewayClient(cfg.Gateway.URL, contractAddr, cfg.Gateway.WriteToken, gatewayTimeout)
	}
	binder := service.NewBinder(bridge, cfg.Networks, factory, logger)
	binder.Register(cache)
	binder.Register(submitter)

	handler := api.NewHandler(binder, cache, submitter, cfg.Logging.Service, cfg.Logging.Version, logger)
	env := logging.Environment{
		Service: cfg.Logging.Service,
		Version: cfg.Logging.Version,
		Commit:  cfg.Logging.Commit,
	}
	root := logging.Middleware(logger, env)(handler.Router())

	server := &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           root,
		ReadTimeout:       time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      time.Duration(cfg.Server.WriteTimeoutSeconds) * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	return &Application{
		Server:     server,
		Bridge:     bridge,
		Binder:     binder,
		Cache:      cache,
		Archive:    archive,
		walletPoll: time.Duration(cfg.Wallet.PollIntervalSeconds) * time.Second,
		logger:     logger,
	}, nil
}

// Start launches the wallet poll loop and the session event loop, then
// attempts the first bind. An initial bind failure is reported once and the
// daemon stays up waiting for the next wallet change.
func (a *Application) Start(ctx context.Context) {
	loopCtx, cancel := context.WithCancel(ctx)
	a.cancelLoop = cancel
	go a.Bridge.Run(loopCtx, a.walletPoll)
	go a.Binder.Run(loopCtx)
	if err := a.Binder.Initialize(loopCtx); err != nil {
		a.logger.Warn("initial session bind failed", slog.String("error", err.Error()))
	}
}

func (a *Application) Shutdown(ctx context.Context) error {
	if a.cancelLoop != nil {
		a.cancelLoop()
	}
	if a.Archive != nil {
		defer a.Archive.Close()
	}
	return a.Server.Shutdown(ctx)
}
