package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"gitlab.com/ConsignEx/escrowrouter/internal/auth"
	"gitlab.com/ConsignEx/escrowrouter/internal/config"
	"gitlab.com/ConsignEx/escrowrouter/internal/escrow"
	"gitlab.com/ConsignEx/escrowrouter/internal/handlers/httphandlers"
	"gitlab.com/ConsignEx/escrowrouter/internal/journal"
	"gitlab.com/ConsignEx/escrowrouter/internal/lib"
	"gitlab.com/ConsignEx/escrowrouter/internal/metrics"
	"gitlab.com/ConsignEx/escrowrouter/internal/repositories/dealstore"
	"gitlab.com/ConsignEx/escrowrouter/internal/repositories/ledger"
	"gitlab.com/ConsignEx/escrowrouter/internal/wallet"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// .env is optional, variables already set in the environment win
	_ = godotenv.Load(".env")

	if len(os.Args) > 1 && os.Args[1] == "address" {
		args := append([]string{os.Args[0]}, os.Args[2:]...)
		if err := printCustodyAddress(args); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	var cfg config.Config
	err := config.LoadConfig(&cfg, &os.Args)
	if err != nil {
		panic(err)
	}
	cfg.SetDefaults()

	newLogger := func(level, name string) (*lib.Logger, error) {
		path := ""
		if cfg.Log.FolderPath != "" {
			if err := os.MkdirAll(cfg.Log.FolderPath, 0755); err != nil {
				return nil, err
			}
			path = filepath.Join(cfg.Log.FolderPath, name+".log")
		}
		return lib.NewLogger(level, cfg.Log.Color, cfg.Log.IsProd, cfg.Log.JSON, path)
	}

	log, err := newLogger(cfg.Log.LevelApp, "app")
	if err != nil {
		panic(err)
	}

	escrowLog, err := newLogger(cfg.Log.LevelEscrow, "escrow")
	if err != nil {
		panic(err)
	}

	ledgerLog, err := newLogger(cfg.Log.LevelLedger, "ledger")
	if err != nil {
		panic(err)
	}

	storageLog, err := newLogger(cfg.Log.LevelStorage, "storage")
	if err != nil {
		panic(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-shutdownChan
		log.Warnf("received signal: %s", s)
		cancel()

		s = <-shutdownChan
		log.Warnf("received signal: %s. Forcing exit...", s)
		os.Exit(1)
	}()

	defer func() {
		_ = log.Sync()
	}()

	log.Infof("escrow router version %s", config.BuildVersion)
	log.Infof("config loaded: %+v", cfg.GetSanitized())

	var wlt *wallet.Wallet
	if cfg.Wallet.PrivateKey != "" {
		wlt, err = wallet.NewWalletFromPrivateKey(cfg.Wallet.PrivateKey)
	} else {
		wlt, err = wallet.NewWalletFromMnemonic(cfg.Wallet.Mnemonic, cfg.Wallet.AccountIndex)
	}
	if err != nil {
		panic(err)
	}
	log.Infof("custody address: %s", wlt.Address())

	lgr, err := ledger.Factory(ctx, ledger.FactoryParams{
		Backend:      cfg.Ledger.Backend,
		Owner:        wlt.Address(),
		GenesisPath:  cfg.Ledger.GenesisPath,
		EthNodeURL:   cfg.Ledger.EthNodeURL,
		TokenAddress: common.HexToAddress(cfg.Ledger.TokenAddress),
		PrivateKey:   wlt.PrivateKeyHex(),
		LegacyTx:     cfg.Ledger.LegacyTx,
	}, ledgerLog.Named("LEDGER"))
	if err != nil {
		panic(err)
	}

	store, err := dealstore.Factory(ctx, dealstore.FactoryParams{
		Backend:       cfg.Store.Backend,
		SQLitePath:    cfg.Store.SQLitePath,
		RedisAddr:     cfg.Store.RedisAddr,
		RedisPassword: cfg.Store.RedisPassword,
		RedisDB:       cfg.Store.RedisDB,
	}, storageLog.Named("STORE"))
	if err != nil {
		panic(err)
	}
	defer func() {
		_ = store.Close()
	}()

	jrn := journal.NewJournal(cfg.Journal.Capacity, escrowLog.Named("JOURNAL"))
	router := escrow.NewRouter(wlt.Address(), lgr, store, jrn, escrowLog.Named("ESCROW"))

	err = router.Restore(ctx)
	if err != nil {
		panic(err)
	}

	mtr := metrics.New(func() float64 {
		return float64(router.OpenDeals())
	})
	authSvc := auth.NewService(cfg.Auth.Secret, cfg.Auth.TokenTTL)

	publicUrl, err := url.Parse(cfg.Web.PublicUrl)
	if err != nil {
		panic(err)
	}

	handl := httphandlers.NewHTTPHandler(router, lgr, jrn, authSvc, mtr, &cfg, publicUrl, log.Named("HTTP"))
	server := &http.Server{
		Addr:    cfg.Web.Address,
		Handler: handl,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Infof("http server is listening: %s", cfg.Web.Address)
		err := server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})

	// payout failures surface in the journal after settlement, count
	// them where the scrape can see them
	sub := jrn.Subscribe()
	g.Go(func() error {
		defer sub.Unsubscribe()
		for {
			select {
			case <-ctx.Done():
				return nil
			case v, ok := <-sub.Events():
				if !ok {
					return nil
				}
				if e, ok := v.(journal.Event); ok && e.Kind == journal.EventPayoutFailed {
					mtr.PayoutFailures.Inc()
				}
			}
		}
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancelShutdown()
		return server.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	if err != nil {
		log.Warnf("app exited due to %s", err)
		return
	}
	log.Infof("app exited")
}
