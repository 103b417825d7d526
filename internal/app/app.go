// Package app wires configuration, storage and the ledger into a running server.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/campus-card/cardledger/internal/cardledger"
	"github.com/campus-card/cardledger/internal/config"
	"github.com/campus-card/cardledger/internal/db"
	"github.com/campus-card/cardledger/internal/events"
	"github.com/campus-card/cardledger/internal/expiry"
	"github.com/campus-card/cardledger/internal/holders"
	"github.com/campus-card/cardledger/internal/http/api/admin"
	"github.com/campus-card/cardledger/internal/locker"
	"github.com/campus-card/cardledger/internal/logging"
	"github.com/campus-card/cardledger/internal/metrics"
	"github.com/campus-card/cardledger/internal/security"
	"github.com/campus-card/cardledger/internal/settings"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const shutdownTimeout = 15 * time.Second

// Migrate opens the database and runs migrations.
func Migrate(ctx context.Context, cfg config.AppConfig) error {
	dsn, err := config.LoadDatabaseDSN(cfg)
	if err != nil {
		return err
	}
	conn, err := db.Open(dsn)
	if err != nil {
		return err
	}
	defer closeDB(conn)
	return db.Migrate(conn.WithContext(ctx))
}

// IssueToken signs an operator token with the configured secret.
func IssueToken(cfg config.AppConfig, operatorID, name, role string) (string, error) {
	jwtCfg, err := config.LoadJWTConfig(cfg)
	if err != nil {
		return "", err
	}
	if jwtCfg.Disabled {
		return "", errors.New("auth is disabled, tokens are not checked")
	}
	if !security.ValidRole(role) {
		return "", fmt.Errorf("unknown role %q", role)
	}
	return security.GenerateOperatorToken(jwtCfg.Secret, operatorID, name, role, jwtCfg.Expiry)
}

// RunServer boots the card ledger API and blocks until ctx is cancelled.
func RunServer(ctx context.Context, cfg config.AppConfig) error {
	appCfg, err := config.Load(cfg)
	if err != nil {
		return err
	}

	logCloser, err := logging.Setup(appCfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = logCloser.Close() }()

	conn, err := db.Open(appCfg.Database.DSN)
	if err != nil {
		return err
	}
	defer closeDB(conn)
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return errMigrate
	}
	if errRefresh := settings.RefreshDBConfigSnapshot(ctx, conn); errRefresh != nil {
		return fmt.Errorf("load settings: %w", errRefresh)
	}

	directory := holders.NewDirectory(conn)
	opts := []cardledger.Option{
		cardledger.WithHolderResolver(directory),
		cardledger.WithObserver(metrics.NewLedger(prometheus.DefaultRegisterer)),
	}

	cardLocker, closeLocker := buildLocker(appCfg.Redis)
	defer closeLocker()
	opts = append(opts, cardledger.WithLocker(cardLocker))

	if strings.TrimSpace(appCfg.NATS.URL) != "" {
		publisher, errConnect := events.Connect(events.Config{
			URL:           appCfg.NATS.URL,
			Token:         appCfg.NATS.Token,
			SubjectPrefix: appCfg.NATS.SubjectPrefix,
		})
		if errConnect != nil {
			return fmt.Errorf("connect nats: %w", errConnect)
		}
		defer publisher.Close()
		opts = append(opts, cardledger.WithPublisher(publisher))
	}

	ledger := cardledger.New(conn, opts...)

	if !appCfg.Expiry.Disabled {
		expiry.NewSweeper(ledger, appCfg.Expiry.Interval).Start(ctx)
	}

	if mode := strings.TrimSpace(appCfg.Server.GinMode); mode != "" {
		gin.SetMode(mode)
	}
	engine := gin.New()
	engine.Use(logging.GinLogger(), gin.Recovery())
	admin.RegisterAdminRoutes(engine, admin.Deps{
		DB:      conn,
		Ledger:  ledger,
		Holders: directory,
		JWT:     appCfg.Auth,
	})

	server := &http.Server{
		Addr:         appCfg.Server.Addr,
		Handler:      engine,
		ReadTimeout:  appCfg.Server.ReadTimeout,
		WriteTimeout: appCfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("card ledger listening on %s", appCfg.Server.Addr)
		if errServe := server.ListenAndServe(); errServe != nil && !errors.Is(errServe, http.ErrServerClosed) {
			errCh <- errServe
		}
		close(errCh)
	}()

	select {
	case errServe := <-errCh:
		return errServe
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	log.Info("shutting down card ledger")
	if errShutdown := server.Shutdown(shutdownCtx); errShutdown != nil {
		return fmt.Errorf("shutdown: %w", errShutdown)
	}
	return nil
}

// buildLocker returns a Redis locker when an address is configured and the
// in-process locker otherwise.
func buildLocker(cfg config.RedisConfig) (locker.Locker, func()) {
	if strings.TrimSpace(cfg.Addr) == "" {
		return locker.NewLocal(), func() {}
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	log.Infof("card locks use redis at %s", cfg.Addr)
	return locker.NewRedis(client, cfg.KeyPrefix, cfg.LockTTL), func() { _ = client.Close() }
}

func closeDB(conn *gorm.DB) {
	if sqlDB, errDB := conn.DB(); errDB == nil {
		_ = sqlDB.Close()
	}
}
