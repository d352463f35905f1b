package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"claimspace/go-backend/internal/bootstrap/chaincfg"
	"claimspace/go-backend/internal/cacheindex"
	"claimspace/go-backend/internal/claims"
	"claimspace/go-backend/internal/identity"
	"claimspace/go-backend/internal/mailbox"
	"claimspace/go-backend/internal/namespace"
	"claimspace/go-backend/internal/platform/privacylog"
	"claimspace/go-backend/internal/signer"
	"claimspace/go-backend/internal/waku"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "Path to chains.yaml (optional)")
	chainID := flag.Uint64("chain-id", 1, "Chain id to load network parameters for")
	transport := flag.String("transport", "", "Network transport override: go-waku | mock")
	flag.Parse()
	if *showVersion {
		fmt.Printf("nsd version=%s commit=%s build_date=%s\n", version, commit, buildDate)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if *transport != "" {
		_ = os.Setenv("CS_NETWORK_TRANSPORT", *transport)
	}

	cfg := chaincfg.LoadFromPath(*configPath, *chainID)
	chaincfg.SetDefault(cfg)

	logger := slog.New(privacylog.WrapHandler(slog.NewJSONHandler(os.Stdout, nil)))
	slog.SetDefault(logger)

	if err := run(ctx, cfg, logger); err != nil {
		log.Fatalf("nsd failed: %v", err)
	}
	logger.Info("nsd stopped")
}

func run(ctx context.Context, cfg chaincfg.Config, logger *slog.Logger) error {
	mnemonic := os.Getenv("CS_MNEMONIC")
	if mnemonic == "" {
		generated, err := signer.GenerateMnemonic()
		if err != nil {
			return fmt.Errorf("generate mnemonic: %w", err)
		}
		mnemonic = generated
		logger.Info("no CS_MNEMONIC set, generated an ephemeral dev identity")
	}
	wallet, err := signer.NewLocalSigner(mnemonic, cfg.ChainID)
	if err != nil {
		return fmt.Errorf("build signer: %w", err)
	}
	defer wallet.Close()

	ident := identity.NewService(wallet, logger)
	go ident.Watch(ctx)

	registry := namespace.NewMemoryRegistry(wallet.Address())
	root, err := namespace.ParsePath(cfg.RootDomain)
	if err != nil {
		return fmt.Errorf("root domain: %w", err)
	}
	registry.Seed(root, wallet.Address())

	var index namespace.ChildIndex
	if cfg.CacheIndexURL != "" {
		index = cacheindex.NewClient(cfg.CacheIndexURL)
	}
	validator := namespace.NewValidator(registry, logger)
	enumerator := namespace.NewEnumerator(registry, index)
	planner := namespace.NewPlanner(registry, validator, enumerator, logger)

	// Dev convenience: stand up an initial organization so the claims flow
	// has a namespace to reference.
	if org := os.Getenv("CS_BOOTSTRAP_ORG"); org != "" {
		orgPath := root.Child(org)
		plan, err := planner.PlanCreate(orgPath, namespace.KindOrganization, namespace.Definition{DisplayName: org})
		if err != nil {
			return fmt.Errorf("plan bootstrap org: %w", err)
		}
		if err := planner.Execute(ctx, plan); err != nil {
			return fmt.Errorf("create bootstrap org: %w", err)
		}
		logger.Info("bootstrap organization created", "path", orgPath.String())
	}

	node := waku.NewNode(cfg.Network)
	if err := node.Start(ctx); err != nil {
		return fmt.Errorf("start transport: %w", err)
	}
	defer func() { _ = node.Stop(context.Background()) }()

	var box claims.MailboxClient
	if cfg.MailboxURL != "" {
		box = mailbox.NewClient(cfg.MailboxURL)
	}
	router := claims.NewRouter(node, box, ident, cfg.ExchangeTopic, logger)
	if err := router.Subscribe(ctx, func(msg claims.Message) {
		switch msg.Kind {
		case claims.KindRequest:
			logger.Info("claim request received",
				"request_id", msg.Request.RequestID,
				"claim_type", msg.Request.ClaimType,
				"requester_did", msg.Request.RequesterDID)
		case claims.KindIssuance:
			logger.Info("claim issuance received",
				"request_id", msg.Issuance.RequestID,
				"issuer_did", msg.Issuance.IssuerDID)
		case claims.KindRejection:
			logger.Info("claim rejection received",
				"request_id", msg.Rejection.RequestID,
				"rejected", strconv.FormatBool(msg.Rejection.IsRejected))
		}
	}); err != nil {
		return fmt.Errorf("subscribe exchange topic: %w", err)
	}

	logger.Info("nsd started",
		"chain", cfg.String(),
		"did", ident.DID(),
		"transport", cfg.Network.Transport)
	<-ctx.Done()
	return nil
}
