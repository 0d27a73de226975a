package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"pam-jwt-issuer/go-backend/internal/composition/issuerserver"
	"pam-jwt-issuer/go-backend/internal/config"
	"pam-jwt-issuer/go-backend/internal/platform/privacylog"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

type flagValues struct {
	showVersion bool
	configPath  string
	envFile     string
	bindAddr    string
	signer      string
	logLevel    string
	logFormat   string
	noMetrics   bool
}

func parseFlags(args []string) (*pflag.FlagSet, flagValues, error) {
	var v flagValues
	fset := pflag.NewFlagSet("issuerd", pflag.ContinueOnError)
	fset.BoolVar(&v.showVersion, "version", false, "print version and exit")
	fset.StringVarP(&v.configPath, "config", "c", "", "path to issuer.yaml (optional, also $"+config.EnvConfigPath+")")
	fset.StringVar(&v.envFile, "env-file", ".env", "dotenv file loaded before reading the environment; missing is fine")
	fset.StringVar(&v.bindAddr, "bind-addr", "", "listen address override (host:port)")
	fset.StringVar(&v.signer, "ssh-signer", "", "ssh certificate signer override: keygen | native")
	fset.StringVar(&v.logLevel, "log-level", "", "log level override: debug | info | warn | error")
	fset.StringVar(&v.logFormat, "log-format", "", "log format override: json | text")
	fset.BoolVar(&v.noMetrics, "no-metrics", false, "disable the /metrics endpoint")
	err := fset.Parse(args)
	return fset, v, err
}

// applyFlags layers explicitly set flags over cfg.
func applyFlags(cfg *config.Config, fset *pflag.FlagSet, v flagValues) {
	if fset.Changed("bind-addr") {
		cfg.BindAddr = v.bindAddr
	}
	if fset.Changed("ssh-signer") {
		cfg.SSH.Signer = v.signer
	}
	if fset.Changed("log-level") {
		cfg.Log.Level = v.logLevel
	}
	if fset.Changed("log-format") {
		cfg.Log.Format = v.logFormat
	}
	if v.noMetrics {
		cfg.MetricsEnabled = false
	}
}

func main() {
	fset, flags, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		log.Fatalf("issuerd: %v", err)
	}
	if flags.showVersion {
		fmt.Printf("issuerd version=%s commit=%s build_date=%s\n", version, commit, buildDate)
		return
	}

	if err := godotenv.Load(flags.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("issuerd: load %s: %v", flags.envFile, err)
	}
	cfg, ignored, err := config.Load(flags.configPath)
	if err != nil {
		log.Fatalf("issuerd: %v", err)
	}
	applyFlags(&cfg, fset, flags)

	logger, err := privacylog.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatalf("issuerd: %v", err)
	}
	for _, name := range ignored {
		logger.Warn("ignoring unparsable environment value", "variable", name)
	}

	srv, err := issuerserver.Build(cfg, logger)
	if err != nil {
		logger.Error("issuerd failed to initialize", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("issuerd starting", "version", version, "addr", srv.Addr())
	if err := srv.Run(ctx); err != nil {
		logger.Error("issuerd failed", "error", err)
		stop()
		os.Exit(1)
	}
	logger.Info("issuerd stopped")
}
