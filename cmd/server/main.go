package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"trilex-backend/internal/config"
	"trilex-backend/internal/database"
	"trilex-backend/internal/discord"
	"trilex-backend/internal/handler"
	"trilex-backend/internal/intake"
	"trilex-backend/internal/middleware"
	"trilex-backend/internal/repository"
	"trilex-backend/internal/repository/sqlite"
	"trilex-backend/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

type stores struct {
	chat   service.ChatStore
	notify service.NotificationStore
	users  service.UserStore
	dir    service.TransactionDirectory
	db     handler.Pinger
	close  func()
}

func openStores(ctx context.Context, cfg *config.Config) stores {
	if cfg.DBDriver == "sqlite" {
		store, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			log.Fatalf("Failed to open sqlite store: %v", err)
		}
		log.Printf("[DB] sqlite store at %s", cfg.SQLitePath)
		return stores{chat: store, notify: store, users: store, dir: store, db: store, close: func() { store.Close() }}
	}

	db, err := database.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if err := database.RunMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	log.Println("Migrations applied successfully")

	users := repository.NewUserRepository(db)
	return stores{
		chat:   repository.NewChatRepository(db),
		notify: repository.NewNotificationRepository(db),
		users:  users,
		dir:    users,
		db:     db,
		close:  db.Close,
	}
}

func main() {
	cfg := config.Load()
	ctx := context.Background()

	st := openStores(ctx, cfg)
	defer st.close()

	// Channel bus: NATS fans events out across instances, the hub alone
	// serves a single node.
	hub := service.NewHub()
	var bus service.Bus = hub
	if cfg.NATSURL != "" {
		nc, err := service.ConnectNATS(cfg.NATSURL)
		if err != nil {
			log.Fatalf("Failed to connect to NATS: %v", err)
		}
		natsBus, err := service.NewNATSBus(nc, hub)
		if err != nil {
			log.Fatalf("Failed to start NATS bus: %v", err)
		}
		defer natsBus.Close()
		bus = natsBus
	}

	var presence service.Presence = service.NewLocalPresence()
	if cfg.RedisURL != "" {
		rdb, err := service.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer rdb.Close()
		presence = service.NewRedisPresence(rdb, cfg.PresenceTTL)
	}

	// Services
	authSvc := service.NewAuthService(st.users, cfg.JWTSecret)
	chatSvc := service.NewChatService(service.ChatDeps{
		Store:            st.chat,
		Users:            st.users,
		Directory:        st.dir,
		Bus:              bus,
		Presence:         presence,
		MaxMessageLength: cfg.MaxMessageLength,
	})
	gateway := service.NewGateway(bus, presence, chatSvc, cfg.WS)

	bot, err := discord.NewBot(cfg.DiscordBotToken, cfg.DiscordOpsChannelID, func() discord.Stats {
		hs := hub.Stats()
		snap := discord.Stats{Sessions: gateway.Sessions(), Subscribers: hs.Connections, Topics: hs.Topics}
		if local, ok := presence.(*service.LocalPresence); ok {
			snap.UsersOnline = local.OnlineUsers()
		}
		return snap
	})
	if err != nil {
		log.Fatalf("Failed to create discord bot: %v", err)
	}
	var sinks []service.NotificationSink
	if bot != nil {
		sinks = append(sinks, bot)
	}
	notifySvc := service.NewNotificationService(st.notify, st.users, bus, sinks...)

	// Fiber app
	app := fiber.New(fiber.Config{
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  30 * time.Second,
		BodyLimit:    1 * 1024 * 1024, // 1MB
	})

	app.Use(recover.New())
	app.Use(middleware.Logger(500 * time.Millisecond))
	app.Use(middleware.CORS(cfg.CORSOrigins))

	handler.Register(app, handler.Routes{
		Auth:         authSvc,
		ServerKey:    cfg.ServerKey,
		AdminKey:     cfg.AdminKey,
		Health:       handler.NewHealthHandler(st.db),
		Chat:         handler.NewChatHandler(chatSvc),
		Notification: handler.NewNotificationHandler(notifySvc),
		Server:       handler.NewServerHandler(notifySvc),
		Admin:        handler.NewAdminHandler(chatSvc, gateway, hub, presence),
		WS:           handler.NewWSHandler(gateway, authSvc),
	})

	// Intake workers
	var worker *intake.Worker
	if cfg.RedisURL != "" {
		worker, err = intake.NewWorker(cfg.RedisURL, cfg.AsynqConcurrency, notifySvc)
		if err != nil {
			log.Fatalf("Failed to create asynq worker: %v", err)
		}
		if err := worker.Start(); err != nil {
			log.Fatalf("Failed to start asynq worker: %v", err)
		}
	}

	var consumer *intake.Consumer
	if cfg.AMQPURL != "" {
		consumer, err = intake.NewConsumer(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, cfg.AMQPWorkers, notifySvc)
		if err != nil {
			log.Fatalf("Failed to connect to AMQP: %v", err)
		}
		if err := consumer.Start(); err != nil {
			log.Fatalf("Failed to start AMQP consumer: %v", err)
		}
	}

	if err := bot.Start(); err != nil {
		log.Printf("[discord-bot] start failed, ops feed disabled: %v", err)
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Fatalf("Server error: %v", err)
		}
	}()

	log.Printf("Trilex realtime backend running on :%s (%s, db=%s)", cfg.Port, cfg.Env, cfg.DBDriver)

	<-quit
	log.Println("Shutting down...")
	_ = app.ShutdownWithTimeout(5 * time.Second)
	if consumer != nil {
		_ = consumer.Close()
	}
	if worker != nil {
		worker.Shutdown()
	}
	bot.Stop()
	log.Println("Server stopped")
}
