package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	nethttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/layer-3/faucetadmin"
	"github.com/layer-3/faucetadmin/adapters/events"
	"github.com/layer-3/faucetadmin/adapters/store"
	"github.com/layer-3/faucetadmin/adapters/wallet"
	"github.com/layer-3/faucetadmin/config"
	"github.com/layer-3/faucetadmin/core"
	"github.com/layer-3/faucetadmin/internal/clock"
	"github.com/layer-3/faucetadmin/ports"
	"github.com/layer-3/faucetadmin/transport/http"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"
)

const (
	// Upper bound for a stored session, matching the server's refresh cookie
	sessionMaxAge = 7 * 24 * time.Hour

	shutdownTimeout = 10 * time.Second
)

func main() {
	configPath := pflag.StringP("config", "c", "", "path to a YAML config file")
	addr := pflag.String("addr", "", "console listen address (overrides CONSOLE_ADDR)")
	pflag.Parse()

	if err := run(*configPath, *addr); err != nil {
		slog.Error("Console stopped", "error", err)
		os.Exit(1)
	}
}

func run(configPath, addr string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if addr != "" {
		cfg.ConsoleAddr = addr
	}

	level, err := cfg.SlogLevel()
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	wmLogger := watermill.NewSlogLogger(logger)

	var (
		credentials ports.CredentialStore
		publisher   message.Publisher
		subscriber  message.Subscriber
	)

	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("failed to parse Redis URL: %w", err)
		}
		redisClient := redis.NewClient(opts)
		defer redisClient.Close()

		credentials = store.NewRedisStore(redisClient, cfg.StoreKey, sessionMaxAge)

		publisher, err = redisstream.NewPublisher(redisstream.PublisherConfig{Client: redisClient}, wmLogger)
		if err != nil {
			return fmt.Errorf("failed to create Redis publisher: %w", err)
		}
		defer publisher.Close()

		subscriber, err = redisstream.NewSubscriber(redisstream.SubscriberConfig{
			Client:        redisClient,
			ConsumerGroup: "faucet-console",
		}, wmLogger)
		if err != nil {
			return fmt.Errorf("failed to create Redis subscriber: %w", err)
		}
		defer subscriber.Close()
	} else {
		credentials = store.NewMemoryStore()
		pubsub := gochannel.NewGoChannel(gochannel.Config{}, wmLogger)
		defer pubsub.Close()
		publisher, subscriber = pubsub, pubsub
	}

	var signer ports.Wallet
	if cfg.WalletPrivateKey != "" {
		signer, err = wallet.NewKeyWalletFromHex(cfg.WalletPrivateKey)
		if err != nil {
			return fmt.Errorf("failed to load wallet key: %w", err)
		}
		logger.Info("Wallet connected", "address", signer.Address())
	}

	client, err := faucetadmin.New(cfg,
		faucetadmin.WithStore(credentials),
		faucetadmin.WithEventPublisher(events.NewWatermillPublisher(publisher)),
		faucetadmin.WithLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("failed to create admin client: %w", err)
	}
	defer client.Close()

	if user, err := client.Resume(ctx); err == nil {
		logger.Info("Resumed session", "address", user.WalletAddress, "role", user.Role)
	} else if !errors.Is(err, core.ErrNoSession) {
		logger.Warn("Could not resume session", "error", err)
	}

	notices := http.NewNoticeFeed(http.DefaultNoticeLimit, logger)
	go func() {
		if err := notices.Run(ctx, subscriber); err != nil {
			logger.Error("Notice feed stopped", "error", err)
		}
	}()

	handlers := http.NewConsoleHandlers(client, signer, notices, clock.Real(), logger)
	server := &nethttp.Server{
		Addr:    cfg.ConsoleAddr,
		Handler: http.SetupRouter(handlers, client.Guard(), logger),
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Starting console", "addr", cfg.ConsoleAddr, "api", cfg.APIURL)
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("failed to start server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
