package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"aptos-x402-gateway/config"
	"aptos-x402-gateway/internal/adapter/aptos"
	"aptos-x402-gateway/internal/adapter/notify"
	pgStorage "aptos-x402-gateway/internal/adapter/storage/postgres"
	memWallet "aptos-x402-gateway/internal/adapter/wallet"
	"aptos-x402-gateway/internal/core/domain"
	"aptos-x402-gateway/internal/core/ports"
	"aptos-x402-gateway/internal/service"
	"aptos-x402-gateway/pkg/logger"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func main() {
	var (
		url        = flag.String("url", "http://localhost:8080/api/premium/weather", "resource to fetch")
		configPath = flag.String("config", "", "path to config file")
		appID      = flag.String("app-id", "", "client application id attached to payment proofs")
		status     = flag.Bool("status", false, "print wallet status and exit")
		refill     = flag.String("refill", "", "move this many APT from saving to spending and exit")
		watch      = flag.Duration("watch", 0, "keep the spending wallet topped up, checking at this interval (e.g. 30s)")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New("payer", cfg.Log.Level, cfg.Log.Pretty)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log, options{url: *url, appID: *appID, statusOnly: *status, refill: *refill, watch: *watch}); err != nil {
		log.Error().Err(err).Msg("Payer failed")
		os.Exit(1)
	}
}

type options struct {
	url        string
	appID      string
	statusOnly bool
	refill     string
	watch      time.Duration
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger, opt options) error {
	network, err := cfg.Payment.NetworkName()
	if err != nil {
		return err
	}
	smart, err := cfg.SmartWallet.ToDomain()
	if err != nil {
		return err
	}

	spending, saving, err := openWallets(cfg, network, log)
	if err != nil {
		return err
	}
	for _, w := range []ports.Wallet{spending, saving} {
		if err := w.Connect(ctx); err != nil {
			return fmt.Errorf("connecting wallet: %w", err)
		}
		defer w.Disconnect(context.Background())
	}

	opts := []service.BalanceManagerOption{}
	if cfg.Database.Enabled {
		pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
		if err != nil {
			return err
		}
		defer pool.Close()
		if err := pgStorage.Migrate(ctx, pool); err != nil {
			return err
		}
		opts = append(opts, service.WithHistory(pgStorage.NewRefillEventRepo(pool), pgStorage.NewTransferRepo(pool)))
	}
	notifiers, err := refillNotifiers(cfg, network, log)
	if err != nil {
		return err
	}
	if len(notifiers) > 0 {
		opts = append(opts, service.WithNotifier(notifiers))
	}

	manager := service.NewBalanceManager(spending, saving, smart, log, opts...)
	defer manager.WaitNotifications()

	if opt.refill != "" {
		amount, err := domain.ParseAmount(opt.refill)
		if err != nil {
			return err
		}
		event, err := manager.ManualRefill(ctx, amount)
		if err != nil {
			return err
		}
		return printJSON(event)
	}

	if opt.statusOnly {
		st, err := manager.Status(ctx)
		if err != nil {
			return err
		}
		return printJSON(map[string]any{"wallets": st, "daily": manager.DailyStats(), "config": manager.Config()})
	}

	if opt.watch > 0 {
		if err := manager.Watch(ctx, opt.watch); err != nil {
			return err
		}
		return printJSON(map[string]any{"daily": manager.DailyStats(), "refills": manager.RefillEvents()})
	}

	negotiator := service.NewNegotiator(http.DefaultClient, manager, log,
		service.WithClientAppID(opt.appID),
		service.WithRequestTimeout(cfg.Payer.RequestTimeout),
	)
	resp, err := negotiator.Get(ctx, opt.url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	log.Info().
		Int("status", resp.StatusCode).
		Int("refills", len(manager.RefillEvents())).
		Int("transfers", len(manager.TransferHistory())).
		Msg("Request finished")
	fmt.Println(string(body))

	return printJSON(map[string]any{"daily": manager.DailyStats(), "refills": manager.RefillEvents()})
}

// openWallets builds the spending and saving wallets for cfg.Wallet.Mode.
func openWallets(cfg *config.Config, network domain.Network, log zerolog.Logger) (ports.Wallet, ports.Wallet, error) {
	switch cfg.Wallet.Mode {
	case config.WalletModeMemory:
		ledger := memWallet.NewLedger()
		open := func(k config.WalletKeyConfig) (ports.Wallet, error) {
			addr := k.Address
			if addr == "" {
				addr = memWallet.RandomAddress()
			}
			if k.InitialBalance != "" {
				bal, err := decimal.NewFromString(k.InitialBalance)
				if err != nil {
					return nil, fmt.Errorf("initial_balance: %w", err)
				}
				if bal.IsPositive() {
					ledger.Fund(addr, bal)
				}
			}
			return memWallet.NewWallet(ledger, addr), nil
		}
		spending, err := open(cfg.Wallet.Spending)
		if err != nil {
			return nil, nil, fmt.Errorf("spending wallet: %w", err)
		}
		saving, err := open(cfg.Wallet.Saving)
		if err != nil {
			return nil, nil, fmt.Errorf("saving wallet: %w", err)
		}
		log.Warn().Msg("Using in-memory wallets, payments are not visible on chain")
		return spending, saving, nil

	case config.WalletModeAptos:
		nodes := cfg.Aptos.NodeURLs
		if len(nodes) == 0 {
			nodes = aptos.DefaultNodeURLs(network)
		}
		client, err := aptos.NewClient(aptos.Config{
			Network:  network,
			NodeURLs: nodes,
			APIKey:   cfg.Aptos.APIKey,
			Timeout:  cfg.Aptos.Timeout,
		}, log)
		if err != nil {
			return nil, nil, err
		}
		var enc *service.AESEncryptionService
		if cfg.AES.Key != "" {
			if enc, err = service.NewAESEncryptionService(cfg.AES.Key); err != nil {
				return nil, nil, err
			}
		}
		open := func(k config.WalletKeyConfig) (ports.Wallet, error) {
			key := k.PrivateKey
			if enc != nil {
				if key, err = enc.OpenSecret(key); err != nil {
					return nil, fmt.Errorf("opening private key: %w", err)
				}
			}
			return aptos.NewWallet(client, key, log, aptos.WithGas(cfg.Aptos.MaxGas, cfg.Aptos.GasPrice))
		}
		spending, err := open(cfg.Wallet.Spending)
		if err != nil {
			return nil, nil, fmt.Errorf("spending wallet: %w", err)
		}
		saving, err := open(cfg.Wallet.Saving)
		if err != nil {
			return nil, nil, fmt.Errorf("saving wallet: %w", err)
		}
		return spending, saving, nil

	default:
		return nil, nil, fmt.Errorf("unknown wallet mode %q", cfg.Wallet.Mode)
	}
}

func refillNotifiers(cfg *config.Config, network domain.Network, log zerolog.Logger) (service.RefillNotifiers, error) {
	var out service.RefillNotifiers
	if cfg.Telegram.Enabled() {
		b, err := notify.NewTelegramBot(cfg.Telegram.BotToken)
		if err != nil {
			return nil, fmt.Errorf("telegram bot: %w", err)
		}
		out = append(out, notify.NewTelegram(b, cfg.Telegram.ChatID, network, log))
	}
	if cfg.Webhook.URL != "" {
		out = append(out, service.NewWebhookNotifier(cfg.Webhook.URL, cfg.Webhook.Secret, http.DefaultClient, log))
	}
	return out, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
