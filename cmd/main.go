package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"spacechat/backend/internal/api/handler"
	"spacechat/backend/internal/backend"
	"spacechat/backend/internal/chathub"
	"spacechat/backend/internal/config"
	"spacechat/backend/internal/feed"
	"spacechat/backend/internal/kvstore"
	"spacechat/backend/internal/localization"
	"spacechat/backend/internal/models"
	"spacechat/backend/internal/storage"
	"spacechat/backend/internal/taskqueue"
	"spacechat/backend/internal/telegram"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func setupDependencies(cfg *config.Config) (*gorm.DB, *redis.Client) {
	// 1. PostgreSQL
	db, err := gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{})
	if err != nil {
		log.Fatalf("Failed to connect PostgreSQL: %v", err)
	}

	// 2. Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	// Перевірка з'єднання Redis
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		log.Fatalf("Failed to connect Redis: %v", err)
	}

	// 3. Міграції (кеш стрічки та outbox)
	err = db.AutoMigrate(
		&models.CachedRoom{},
		&models.CachedMessage{},
		&models.OutboxEntry{},
	)
	if err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	log.Println("Database and Redis connections established, migrations complete.")
	return db, rdb
}

func main() {
	log.Println("Starting spacechat feed gateway...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET не встановлено!")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Ініціалізація залежностей
	db, rdb := setupDependencies(cfg)
	s := storage.NewStorageService(db, rdb)
	store := kvstore.NewRedisStore(rdb, "spacechat:")

	gql := backend.New(backend.Options{
		URL:     cfg.GraphQLURL,
		WSURL:   cfg.GraphQLWSURL,
		Token:   cfg.BackendToken,
		Timeout: cfg.BackendTimeout,
	})

	localizer, err := localization.NewEmbedded()
	if cfg.LocalesDir != "" {
		localizer, err = localization.NewLocalizer(cfg.LocalesDir)
	}
	if err != nil {
		log.Fatalf("Failed to load translations: %v", err)
	}

	// 2. Сповіщення (Telegram необов'язковий)
	var notifier telegram.Notifier = telegram.Nop{}
	var botService *telegram.BotService
	if cfg.TelegramBotToken != "" {
		botService, err = telegram.NewBotService(cfg.TelegramBotToken, store, localizer, cfg.LocaleDefault)
		if err != nil {
			log.Fatalf("Не вдалося запустити Telegram-бота: %v", err)
		}
		notifier = botService.Notifier
	} else {
		log.Println("WARN: TELEGRAM_BOT_TOKEN is not set, offline notifications are disabled")
	}

	// 3. Chat Hub
	hub := chathub.NewManagerService(s, gql, notifier, store)

	feedOpts := feed.Options{
		PageSize: cfg.PageSize,
		Policy: taskqueue.Policy{
			Timeout:     cfg.QueueTimeout,
			MaxAttempts: cfg.QueueMaxAttempts,
			BaseBackoff: cfg.QueueBaseBackoff,
			MaxBackoff:  cfg.QueueMaxBackoff,
		},
		Cache:  s,
		Outbox: s,
	}

	// 4. Налаштування Gin та роутингу
	r := gin.Default()
	h := handler.NewHandler(hub, gql, store, handler.NewTokenIssuer(cfg.JWTSecret, cfg.JWTIssuer), feedOpts)
	h.Register(r)

	server := &http.Server{
		Addr:           cfg.HTTPAddr,
		Handler:        r,
		ReadTimeout:    10 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	// 5. Запуск основних Goroutines
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	hub.StartPubSubListener(gctx)
	if botService != nil {
		g.Go(func() error {
			botService.Run(gctx)
			return nil
		})
	}
	g.Go(func() error {
		log.Printf("INFO: listening on %s", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatalf("Gateway stopped: %v", err)
	}
	log.Println("Gateway stopped.")
}
