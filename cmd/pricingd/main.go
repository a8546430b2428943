package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"pricingcore/internal/config"
	"pricingcore/internal/date"
	dirmem "pricingcore/internal/directory/memory"
	"pricingcore/internal/httpx"
	"pricingcore/internal/logging"
	"pricingcore/internal/manager"
	"pricingcore/internal/pricing"
	"pricingcore/internal/provider"
	"pricingcore/internal/provider/cache"
	"pricingcore/internal/provider/coingecko"
	"pricingcore/internal/provider/ratelimit"
	"pricingcore/internal/provider/stooq"
	"pricingcore/internal/store"
	storemem "pricingcore/internal/store/memory"
	"pricingcore/internal/store/postgres"
)

func main() {
	var (
		configPath string
		action     string
		instrument string
		provCode   string
		identifier string
		idKind     string
		fromStr    string
		toStr      string
		timeout    int
	)
	flag.StringVar(&configPath, "config", getenv("CONFIG_FILE", ""), "path to config.yaml (optional)")
	flag.StringVar(&action, "action", "refresh", "refresh | query | assign | search")
	flag.StringVar(&instrument, "instrument", "", "instrument UUID")
	flag.StringVar(&provCode, "provider", "", "provider code for assign/search")
	flag.StringVar(&identifier, "identifier", "", "provider-specific identifier (assign) or query text (search)")
	flag.StringVar(&idKind, "identifier-kind", string(pricing.IdentifierTicker), "ticker | isin | native")
	flag.StringVar(&fromStr, "from", "", "start date YYYY-MM-DD")
	flag.StringVar(&toStr, "to", "", "end date YYYY-MM-DD (optional)")
	flag.IntVar(&timeout, "timeout", getenvInt("REQUEST_TIMEOUT_SEC", 30), "batch timeout seconds")
	flag.Parse()

	// .env is optional; real environments set variables directly.
	_ = godotenv.Load()

	cfg := config.Default()
	if configPath != "" {
		var err error
		cfg, err = config.LoadAndValidate(configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "config: %v\n", err)
			os.Exit(1)
		}
	}
	log := logging.New(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, time.Duration(timeout)*time.Second)
	defer cancel()

	st, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("open store")
	}
	defer closeStore()

	reg, err := buildRegistry(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("build providers")
	}
	log.WithField("providers", reg.Codes()).Info("providers registered")

	mgr := manager.New(reg, st, dirmem.New(), // directory comes from the owning application
		manager.WithLogger(log),
		manager.WithConcurrency(cfg.Manager.Concurrency),
	)

	if err := run(ctx, mgr, reg, action, runArgs{
		instrument: instrument,
		provider:   provCode,
		identifier: identifier,
		idKind:     idKind,
		from:       fromStr,
		to:         toStr,
	}); err != nil {
		log.WithError(err).Fatal(action)
	}
}

type runArgs struct {
	instrument, provider, identifier, idKind, from, to string
}

func run(ctx context.Context, mgr *manager.Manager, reg *provider.Registry, action string, args runArgs) error {
	switch action {
	case "search":
		p, err := reg.Lookup(args.provider)
		if err != nil {
			return err
		}
		hits, err := p.Search(ctx, args.identifier)
		if err != nil {
			return err
		}
		return printJSON(hits)

	case "assign":
		id, err := uuid.Parse(args.instrument)
		if err != nil {
			return fmt.Errorf("instrument: %w", err)
		}
		res := mgr.AssignProvider(ctx, manager.AssignItem{
			InstrumentID:   id,
			ProviderCode:   args.provider,
			Identifier:     args.identifier,
			IdentifierKind: pricing.IdentifierKind(strings.ToLower(args.idKind)),
		})
		return printJSON(res)

	case "refresh":
		id, err := uuid.Parse(args.instrument)
		if err != nil {
			return fmt.Errorf("instrument: %w", err)
		}
		item := manager.RefreshItem{InstrumentID: id}
		if args.from != "" {
			if item.From, err = date.Parse(args.from); err != nil {
				return fmt.Errorf("from: %w", err)
			}
		}
		if args.to != "" {
			if item.To, err = date.Parse(args.to); err != nil {
				return fmt.Errorf("to: %w", err)
			}
		}
		res := mgr.RefreshPrice(ctx, item, nil)
		return printJSON(res)

	case "query":
		id, err := uuid.Parse(args.instrument)
		if err != nil {
			return fmt.Errorf("instrument: %w", err)
		}
		from, err := date.Parse(args.from)
		if err != nil {
			return fmt.Errorf("from: %w", err)
		}
		var to date.Date
		if args.to != "" {
			if to, err = date.Parse(args.to); err != nil {
				return fmt.Errorf("to: %w", err)
			}
		}
		points, err := mgr.Query(ctx, id, from, to)
		if err != nil {
			return err
		}
		return printJSON(points)

	default:
		return fmt.Errorf("unknown action %q", action)
	}
}

func openStore(ctx context.Context, cfg *config.Config, log *logrus.Logger) (store.Store, func(), error) {
	if cfg.Database.URL == "" {
		log.Warn("no database configured, using in-memory store")
		return storemem.New(), func() {}, nil
	}
	pg, err := postgres.Connect(ctx, cfg.Database.URL, log)
	if err != nil {
		return nil, nil, err
	}
	if err := pg.EnsureSchema(ctx); err != nil {
		pg.Close()
		return nil, nil, err
	}
	return pg, pg.Close, nil
}

func buildRegistry(cfg *config.Config, log *logrus.Logger) (*provider.Registry, error) {
	reg := provider.NewRegistry(log)

	if cfg.Providers.CoinGecko.Enabled {
		gecko := cfg.Providers.CoinGecko
		opts := []coingecko.APIClientOption{}
		if gecko.BaseURL != "" {
			opts = append(opts, coingecko.WithBaseURL(gecko.BaseURL))
		}
		client, err := coingecko.NewAPIClient(gecko.APIKey, opts...)
		if err != nil {
			return nil, fmt.Errorf("coingecko: %w", err)
		}
		reg.Register(decorate(coingecko.New(coingecko.Config{}, client),
			gecko.RequestsPerMinute, gecko.Burst, cfg.Manager.SearchCacheTTL))
	}

	if cfg.Providers.Stooq.Enabled {
		sq := cfg.Providers.Stooq
		p := stooq.New(stooq.Config{BaseURL: sq.BaseURL, Currency: sq.Currency},
			httpx.New(15*time.Second))
		reg.Register(decorate(p, sq.RequestsPerMinute, sq.Burst, cfg.Manager.SearchCacheTTL))
	}
	return reg, nil
}

// decorate wraps a provider with rate limiting and a search cache.
func decorate(p provider.Provider, rpm, burst int, searchTTL time.Duration) provider.Provider {
	limited := ratelimit.New(p, rpm, burst)
	return cache.New(limited, searchTTL)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil {
			return n
		}
	}
	return def
}
