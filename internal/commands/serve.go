package commands

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/kripika/tli-tracker/internal/auth"
	"github.com/kripika/tli-tracker/internal/config"
	"github.com/kripika/tli-tracker/internal/engine"
	"github.com/kripika/tli-tracker/internal/gamelog"
	"github.com/kripika/tli-tracker/internal/mock"
	"github.com/kripika/tli-tracker/internal/persist"
	"github.com/kripika/tli-tracker/internal/remote"
	"github.com/kripika/tli-tracker/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the tracker server",
	Run: func(cmd *cobra.Command, args []string) {
		// Load .env if present; real config still wins via TLI_* vars.
		_ = godotenv.Load()

		configPath, _ := cmd.Flags().GetString("config")
		port, _ := cmd.Flags().GetInt("port")
		logFile, _ := cmd.Flags().GetString("log-file")
		demo, _ := cmd.Flags().GetBool("demo")

		cfg, err := config.Load(configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		if port > 0 {
			cfg.Server.Port = port
		}
		if logFile != "" {
			cfg.GameLog.Path = logFile
		}

		runServe(cfg, demo)
	},
}

func init() {
	serveCmd.Flags().StringP("config", "c", "config.yaml", "Path to config file")
	serveCmd.Flags().IntP("port", "p", 0, "Override server port")
	serveCmd.Flags().String("log-file", "", "Pin the game log file, skipping discovery")
	serveCmd.Flags().Bool("demo", false, "Generate synthetic gameplay instead of tailing the real game")
}

func runServe(cfg *config.Config, demo bool) {
	store := persist.NewStore(cfg.DataDir)

	if demo {
		cfg.GameLog.Path = filepath.Join(store.Dir(), "demo", gamelog.LogFileName)
		if err := os.MkdirAll(filepath.Dir(cfg.GameLog.Path), 0o755); err != nil {
			log.Fatalf("Failed to create demo dir: %v", err)
		}
	}

	// The interface variables stay nil when remote sync is off; a typed
	// nil *remote.Client in them would defeat the nil checks downstream.
	var (
		engineBackend engine.Backend
		authBackend   auth.Backend
		api           server.RemoteAPI
	)
	switch {
	case demo:
		log.Println("Demo mode: synthetic gameplay, remote sync off")
	case cfg.RemoteEnabled():
		client := remote.NewClient(cfg.Remote.SupabaseURL, cfg.Remote.AnonKey, cfg.Remote.Timeout)
		engineBackend = client
		authBackend = client
		api = client
		log.Printf("Remote sync enabled: %s", cfg.Remote.SupabaseURL)
	default:
		log.Println("Remote sync disabled (no supabase_url / anon_key), running local-only")
	}

	authMgr := auth.NewManager(authBackend, store.Dir())
	eng := engine.New(cfg, store, engineBackend, authMgr, version)

	broadcaster := server.NewBroadcaster(
		eng.Tracker(), eng.Projector(),
		cfg.Server.BroadcastThrottle, cfg.Server.SnapshotInterval,
	)
	eng.SetNotifier(broadcaster)

	eng.Restore()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if demo {
		eng.Items().Replace(mock.Catalog())
		if id, ok := eng.Items().BaseCurrencyID(); ok {
			eng.Prices().InitBaseCurrency(id)
		}
		eng.StartSession("")
		mock.NewGenerator(cfg.GameLog.Path).Start(ctx)
	}

	logs := newLogManager(ctx, cfg, eng)
	go eng.Run(ctx, logs.Events())

	srv := server.NewServer(cfg, eng, authMgr, api, logs, broadcaster)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("Shutting down...")
		cancel()
		os.Exit(0)
	}()

	if err := server.ListenAndServe(cfg.Server.Host, cfg.Server.Port, srv.Handler()); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
