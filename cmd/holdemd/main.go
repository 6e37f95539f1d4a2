package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/decred/slog"

	"github.com/pokercore/holdemd/internal/config"
	"github.com/pokercore/holdemd/pkg/boundary"
	"github.com/pokercore/holdemd/pkg/engine"
	"github.com/pokercore/holdemd/pkg/ledger"
	"github.com/pokercore/holdemd/pkg/snapshot"
	"github.com/pokercore/holdemd/pkg/store"
)

func main() {
	var (
		tableID    string
		debugLevel string
	)
	flag.StringVar(&tableID, "table", "table-1", "Table id to host")
	flag.StringVar(&debugLevel, "debuglevel", "", "Logging level: trace, debug, info, warn, error (overrides env)")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if debugLevel != "" {
		cfg.DebugLevel = debugLevel
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	// Logging backend with per-subsystem tags.
	backend := slog.NewBackend(os.Stdout)
	level, _ := slog.LevelFromString(cfg.DebugLevel)
	newLogger := func(tag string) slog.Logger {
		log := backend.Logger(tag)
		log.SetLevel(level)
		return log
	}
	srvLog := newLogger("SRVR")

	// Ledger and its guards.
	chipLedger, err := ledger.New(ledger.Config{Log: newLogger("LEDG")})
	if err != nil {
		srvLog.Errorf("create ledger: %v", err)
		os.Exit(1)
	}
	recorder := ledger.NewSettlementRecorder(chipLedger, newLogger("LEDG"))
	checker := ledger.NewInvariantChecker()

	topups, err := boundary.NewTopUpBoundary(boundary.TopUpConfig{
		Log:    newLogger("BNDY"),
		Ledger: chipLedger,
		Strict: cfg.StrictBoundary,
	})
	if err != nil {
		srvLog.Errorf("create topup boundary: %v", err)
		os.Exit(1)
	}
	admins, err := boundary.NewAdminCreditService(boundary.AdminCreditConfig{
		Log:    newLogger("BNDY"),
		TopUps: topups,
	})
	if err != nil {
		srvLog.Errorf("create admin credit service: %v", err)
		os.Exit(1)
	}
	_ = admins // registered and driven by the hosting process

	// Snapshots and recovery.
	snapStore, err := snapshot.NewFileStore(cfg.SnapshotPath)
	if err != nil {
		srvLog.Errorf("open snapshot store: %v", err)
		os.Exit(1)
	}
	snapshots, err := snapshot.NewManager(snapshot.ManagerConfig{
		Store:       snapStore,
		Log:         newLogger("SNAP"),
		MinInterval: cfg.SnapshotMinInterval,
		Retention:   cfg.SnapshotRetention,
	})
	if err != nil {
		srvLog.Errorf("create snapshot manager: %v", err)
		os.Exit(1)
	}

	recovery, err := snapshot.NewRecoveryManager(snapshot.RecoveryConfig{
		Store:       snapStore,
		Log:         newLogger("SNAP"),
		GracePeriod: cfg.ReconnectGrace,
	})
	if err != nil {
		srvLog.Errorf("create recovery manager: %v", err)
		os.Exit(1)
	}
	recovered, err := recovery.Recover()
	if err != nil {
		srvLog.Warnf("recovery failed, starting fresh: %v", err)
	}
	for _, table := range recovered {
		srvLog.Infof("table %s awaits %d reconnectable players",
			table.Snapshot.TableID, len(table.Players))
	}

	// Table service.
	svc, err := engine.NewGameService(engine.ServiceConfig{
		Table: engine.TableConfig{
			ID:            tableID,
			ClubID:        cfg.ClubID,
			SmallBlind:    cfg.SmallBlind,
			BigBlind:      cfg.BigBlind,
			MinPlayers:    cfg.MinPlayers,
			MaxPlayers:    cfg.MaxPlayers,
			Rake:          engine.RakeConfig{Bps: cfg.RakeBps, Cap: cfg.RakeCap},
			ClubShareBps:  cfg.ClubShareBps,
			AgentShareBps: cfg.AgentShareBps,
			AgentID:       cfg.AgentID,
			ActionTimeout: cfg.ActionTimeout,
		},
		Log:       newLogger("ENGN"),
		Recorder:  recorder,
		Checker:   checker,
		Ledger:    chipLedger,
		TopUps:    topups,
		Snapshots: snapshots,
	})
	if err != nil {
		srvLog.Errorf("create game service: %v", err)
		os.Exit(1)
	}

	// Optional sqlite audit archive.
	var archive *store.ArchiveDB
	if cfg.ArchiveEnabled {
		archive, err = store.NewArchiveDB(cfg.ArchivePath)
		if err != nil {
			srvLog.Errorf("open ledger archive: %v", err)
			os.Exit(1)
		}
		defer archive.Close()
	}

	srvLog.Infof("holdemd hosting table %s (blinds %d/%d, rake %d bps)",
		tableID, cfg.SmallBlind, cfg.BigBlind, cfg.RakeBps)

	// Run until signalled, then force a final snapshot.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	srvLog.Infof("shutting down")
	snapshots.FinalSnapshot(svc.GetGameState())
	if archive != nil {
		if err := archive.ArchiveAll(chipLedger); err != nil {
			srvLog.Errorf("final ledger archive: %v", err)
		}
	}
	if err := snapshots.LastError(); err != nil {
		srvLog.Warnf("last snapshot error: %v", err)
	}
}
