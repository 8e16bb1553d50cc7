// README: Entry point; loads config, wires services, starts HTTP server, socket hub and matching sweep.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"ridebook/internal/config"
	httptransport "ridebook/internal/http"
	"ridebook/internal/infra"
	"ridebook/internal/maps"
	"ridebook/internal/modules/auth"
	"ridebook/internal/modules/driver"
	"ridebook/internal/modules/location"
	"ridebook/internal/modules/matching"
	"ridebook/internal/modules/notify"
	"ridebook/internal/modules/otp"
	"ridebook/internal/modules/pricing"
	"ridebook/internal/modules/ride"
	"ridebook/internal/modules/user"
)

func main() {
	config.LoadDotEnvUp(8)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	logger, err := infra.NewLogger(cfg.Local())
	if err != nil {
		log.Fatalf("logger init: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbPool, err := infra.NewDB(ctx, cfg.DB.DSN)
	if err != nil {
		logger.Fatal("postgres init", zap.Error(err))
	}
	defer dbPool.Close()

	redisClient, err := infra.NewRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Fatal("redis init", zap.Error(err))
	}
	defer redisClient.Close()

	pricingSvc := pricing.NewService(pricing.NewStore(dbPool))
	userStore := user.NewStore(dbPool)

	driverSvc := driver.NewService(driver.NewStore(dbPool), driver.NewKYCStore(dbPool), logger).
		WithGeoIndex(matching.NewStore(redisClient), cfg.Matching.RadiusKm)

	var mailer otp.Mailer = infra.LogMailer{Log: logger}
	if cfg.SMTP.Host != "" {
		mailer = infra.NewSMTPMailer(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.User, cfg.SMTP.Password, cfg.SMTP.From)
	}
	otpSvc := otp.NewService(otp.NewRedisStore(redisClient), mailer, otp.Options{
		TTL:             cfg.OTP.TTL,
		ConsumeOnVerify: cfg.OTP.ConsumeOnVerify,
	}, logger)

	jwtManager := infra.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	verifier := infra.ChainVerifier{jwtManager}

	hub := notify.NewHub(nil, logger)
	notifiers := notify.Multi{hub}

	var mirror location.Mirror
	if cfg.Auth.FirebaseProjectID != "" {
		fb, err := infra.NewFirebase(ctx, cfg.Auth.FirebaseProjectID, cfg.Auth.FirebaseCredsFile, cfg.Auth.FirebaseDBURL)
		if err != nil {
			logger.Fatal("firebase init", zap.Error(err))
		}
		fbVerifier, err := fb.Verifier(ctx)
		if err != nil {
			logger.Fatal("firebase auth", zap.Error(err))
		}
		verifier = append(verifier, fbVerifier)

		if msg, err := fb.Messaging(ctx); err != nil {
			logger.Warn("firebase messaging disabled", zap.Error(err))
		} else {
			notifiers = append(notifiers, notify.NewFCMPusher(msg, logger))
		}
		if cfg.Auth.FirebaseDBURL != "" {
			rtdb, err := fb.Database(ctx)
			if err != nil {
				logger.Fatal("firebase database", zap.Error(err))
			}
			mirror = location.NewRTDBMirror(location.DBWriter{Client: rtdb})
		}
	}

	if cfg.RabbitMQ.URL != "" {
		conn, err := infra.NewRabbitMQ(cfg.RabbitMQ.URL)
		if err != nil {
			logger.Fatal("rabbitmq init", zap.Error(err))
		}
		defer conn.Close()
		publisher, err := notify.NewAMQPPublisher(conn)
		if err != nil {
			logger.Fatal("rabbitmq publisher", zap.Error(err))
		}
		defer publisher.Close()
		notifiers = append(notifiers, publisher)
	}

	rideSvc := ride.NewService(ride.NewStore(dbPool), pricingSvc, driverSvc, userStore, notifiers, logger)
	if cfg.Maps.APIKey != "" {
		routes, err := maps.NewRouteService(cfg.Maps.APIKey)
		if err != nil {
			logger.Fatal("maps init", zap.Error(err))
		}
		rideSvc = rideSvc.WithDistanceEstimator(routes)
	}
	hub.SetAuthorizer(rideSvc)

	matchingSvc := matching.NewService(rideSvc, cfg.Matching, logger)

	locationSvc := location.NewService(rideSvc, driverSvc, location.NewStore(dbPool), notifiers, logger)
	if mirror != nil {
		locationSvc = locationSvc.WithMirror(mirror)
	}

	authSvc := auth.NewService(userStore, otpSvc, jwtManager, logger)

	handler := httptransport.NewRouter(httptransport.Deps{
		Auth:           authSvc,
		Rides:          rideSvc,
		Drivers:        driverSvc,
		Location:       locationSvc,
		Sockets:        hub,
		Verifier:       verifier,
		Log:            logger,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		Debug:          cfg.Local(),
	})

	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go hub.Run(ctx)
	go matchingSvc.RunScheduler(ctx)

	go func() {
		logger.Info("server listening", zap.String("addr", cfg.HTTP.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
}
