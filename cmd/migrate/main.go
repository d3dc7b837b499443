package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/your-org/attendance/internal/config"
	"github.com/your-org/attendance/internal/observability"
	"github.com/your-org/attendance/internal/storage"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: migrate [-config path] up|down|version\n")
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	m, err := storage.NewMigrator(cfg.Database.MigrateURL())
	if err != nil {
		slog.Error("init migrator", "error", err)
		os.Exit(1)
	}
	defer m.Close()

	switch cmd := flag.Arg(0); cmd {
	case "up":
		err = m.Up()
	case "down":
		err = m.Down()
	case "version":
		var (
			version uint
			dirty   bool
		)
		version, dirty, err = m.Version()
		if err == nil {
			fmt.Printf("version %d (dirty: %t)\n", version, dirty)
		}
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		slog.Error("migration failed", "command", flag.Arg(0), "error", err)
		os.Exit(1)
	}
	slog.Info("migration complete", "command", flag.Arg(0))
}
