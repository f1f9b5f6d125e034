package main

import (
	"context"
	"database/sql"
	"flag"

	"github.com/ageniuscoder/relaychat/internal/auth"
	"github.com/ageniuscoder/relaychat/internal/config"
	"github.com/ageniuscoder/relaychat/internal/conversations"
	"github.com/ageniuscoder/relaychat/internal/feature"
	"github.com/ageniuscoder/relaychat/internal/hub"
	"github.com/ageniuscoder/relaychat/internal/messages"
	"github.com/ageniuscoder/relaychat/internal/metrics"
	"github.com/ageniuscoder/relaychat/internal/profile"
	"github.com/ageniuscoder/relaychat/internal/storage/postgres"
	"github.com/ageniuscoder/relaychat/internal/storage/sqlite"
	"github.com/ageniuscoder/relaychat/internal/store"
	"github.com/ageniuscoder/relaychat/internal/users"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type migrator interface {
	Migrate(schemaPath string) error
}

func main() {
	migrate := flag.Bool("migrate", false, "run migrations and exit")
	schema := flag.String("schema", "sql/schema.sql", "path to schema file")
	flag.Parse()

	log, _ := zap.NewProduction()
	defer log.Sync()

	if err := godotenv.Load(); err != nil {
		log.Warn("no .env file loaded", zap.Error(err))
	}
	cfg := config.MustLoad()

	var (
		db  *sql.DB
		mig migrator
	)
	switch cfg.DBDriver {
	case "postgres":
		conn, err := postgres.New(cfg.PostgresDSN)
		if err != nil {
			log.Fatal("postgres open failed", zap.Error(err))
		}
		db, mig = conn.Db, conn
	default:
		conn, err := sqlite.New(cfg.SQLiteDSN)
		if err != nil {
			log.Fatal("sqlite open failed", zap.Error(err))
		}
		db, mig = conn.Db, conn
	}
	defer db.Close()

	if *migrate {
		if err := mig.Migrate(*schema); err != nil {
			log.Fatal("migration failed", zap.Error(err))
		}
		log.Info("migration completed")
		return
	}

	var opts []store.Option
	if cfg.RedisAddr != "" {
		mirror := store.NewPresenceMirror(cfg.RedisAddr)
		defer mirror.Close()
		opts = append(opts, store.WithPresenceMirror(mirror))
	}
	repo := store.New(db, cfg.DBDriver, log, opts...)

	metrics.Register()

	h := hub.New(repo, log, hub.Options{
		RingTimeout:   cfg.RingTimeout,
		MaxMsgBytes:   cfg.MaxMsgBytes,
		SendQueueSize: cfg.SendQueueSize,
		PhoneRegion:   cfg.PhoneRegion,
	})
	go h.Run(context.Background())

	r := gin.Default()
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	pub := r.Group("/api")
	users.RegisterPublic(pub, db, cfg)

	priv := r.Group("/api")
	priv.Use(auth.JWTMiddleware(cfg.JWTSecret))
	profile.Register(priv, db, log)
	feature.Register(priv, db, log)
	conversations.Register(priv, db, h, log)
	messages.Register(priv, db, log)

	ws := r.Group("/")
	hub.RegisterWS(ws, h, cfg.JWTSecret)

	log.Info("chatd listening", zap.String("addr", cfg.Addr), zap.String("driver", cfg.DBDriver))
	if err := r.Run(cfg.Addr); err != nil {
		log.Fatal("server exited", zap.Error(err))
	}
}
