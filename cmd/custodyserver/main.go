package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/ruteri/embedded-wallet-custody/activation"
	"github.com/ruteri/embedded-wallet-custody/api/custodyhandler"
	"github.com/ruteri/embedded-wallet-custody/api/server"
	"github.com/ruteri/embedded-wallet-custody/audit"
	"github.com/ruteri/embedded-wallet-custody/auth"
	"github.com/ruteri/embedded-wallet-custody/challenge"
	"github.com/ruteri/embedded-wallet-custody/cmd/flags"
	"github.com/ruteri/embedded-wallet-custody/db"
	"github.com/ruteri/embedded-wallet-custody/interfaces"
	"github.com/ruteri/embedded-wallet-custody/janitor"
	"github.com/ruteri/embedded-wallet-custody/kms"
	"github.com/ruteri/embedded-wallet-custody/recovery"
	"github.com/ruteri/embedded-wallet-custody/storage"
	"github.com/ruteri/embedded-wallet-custody/wallets"
	"github.com/urfave/cli/v2"
)

const dbFilename = "custody.db"

func main() {
	app := &cli.App{
		Name:  "custody-server",
		Usage: "Serve embedded wallet key-share custody",
		Flags: append(serverFlags, flags.CommonFlags...),
		Action: func(cCtx *cli.Context) error {
			logger := flags.SetupLogger(cCtx)

			cfg, err := configFromFlags(cCtx)
			if err != nil {
				logger.Error("Invalid configuration", "err", err)
				return err
			}
			logger.Info("Configuration loaded",
				"environment", cfg.Environment,
				"challengeTTL", cfg.ChallengeTTL,
				"shareActiveTTL", cfg.ShareActiveTTL,
				"shareInactiveTTL", cfg.ShareInactiveTTL)

			secret, err := readIdentitySecret(cCtx.String(IdentitySecretFileFlag.Name))
			if err != nil {
				logger.Error("Failed to read identity secret", "err", err)
				return err
			}

			store, err := db.OpenFileStore(cCtx.String(DBDirFlag.Name), dbFilename)
			if err != nil {
				logger.Error("Failed to open database", "err", err)
				return err
			}
			defer store.Close()

			seedLocations := make([]interfaces.StorageBackendLocation, 0)
			for _, uri := range cCtx.StringSlice(BackupSeedURIFlag.Name) {
				seedLocations = append(seedLocations, interfaces.StorageBackendLocation(uri))
			}
			seedBackend, err := storage.NewStorageBackendFactory(logger).CreateMultiBackend(seedLocations)
			if err != nil {
				logger.Error("Failed to create seed storage", "err", err)
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			seed, err := kms.LoadSeed(ctx, seedBackend, cCtx.Bool(BackupSeedInitFlag.Name), logger)
			cancel()
			if err != nil {
				logger.Error("Failed to load backup seed", "err", err)
				return err
			}
			backupKMS, err := kms.NewBackupKMS(seed)
			if err != nil {
				logger.Error("Failed to initialize backup KMS", "err", err)
				return err
			}

			clk := clock.New()

			registry, err := challenge.DefaultRegistry()
			if err != nil {
				return err
			}
			protocol, err := challenge.NewProtocol(registry, challenge.Options{
				TTL:                 cfg.ChallengeTTL,
				AllowHashChallenges: cfg.AllowHashChallenges,
			}, clk, logger)
			if err != nil {
				logger.Error("Failed to create challenge protocol", "err", err)
				return err
			}

			cleanup := janitor.NewQueue(cCtx.Int(CleanupWorkersFlag.Name), janitor.DefaultBacklog, logger)
			defer cleanup.Close()

			recorder := audit.NewRecorder(store, clk, logger)
			walletService := wallets.NewService(store, protocol, cleanup, cfg, clk, logger)
			activationService := activation.NewService(store, protocol, recorder, cfg, clk, logger)
			recoveryService := recovery.NewService(store, protocol, backupKMS, recorder, cleanup, cfg, clk, logger)

			provider, err := auth.NewJWTIdentityProvider(secret, cCtx.String(IdentityIssuerFlag.Name), clk)
			if err != nil {
				logger.Error("Failed to create identity provider", "err", err)
				return err
			}
			sessions := auth.NewMiddleware(provider, store, clk, logger)

			handler := custodyhandler.NewHandler(walletService, activationService, recoveryService, sessions, logger)
			srv, err := server.New(flags.ConfigureServer(cCtx, logger, cCtx.String(ListenAddrFlag.Name)), handler)
			if err != nil {
				logger.Error("Failed to create server", "err", err)
				return err
			}

			var reaper *janitor.Reaper
			if cfg.CleanupInterval > 0 {
				reaper = janitor.NewReaper(store, clk, cfg.CleanupInterval, cfg.ChallengeTTL, cfg.DeviceLocationRetention, logger)
				reaper.Start(context.Background())
			}

			srv.RunInBackground()

			exit := make(chan os.Signal, 1)
			signal.Notify(exit, os.Interrupt, syscall.SIGTERM)

			logger.Info("Server is running, press Ctrl+C to stop",
				"backupKeyBackend", seedBackend.LocationURI())
			<-exit
			logger.Info("Shutdown signal received")

			srv.Shutdown()
			if reaper != nil {
				reaper.Stop()
			}
			logger.Info("Server shutdown complete")
			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
