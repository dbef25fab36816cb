// README: Entry point; loads config, wires stores and services, starts the HTTP server and the presence reindexer.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"ridehail/internal/config"
	httptransport "ridehail/internal/http"
	"ridehail/internal/infra"
	"ridehail/internal/modules/location"
	"ridehail/internal/modules/presence"
	"ridehail/internal/modules/pricing"
	"ridehail/internal/modules/profile"
	"ridehail/internal/modules/ride"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatal(err)
	}
	log := infra.NewLogger(cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	verifier, err := newVerifier(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("auth init")
	}

	dbPool, err := infra.NewDB(ctx, cfg.DB.DSN)
	if err != nil {
		log.WithError(err).Fatal("db init")
	}
	defer dbPool.Close()
	if err := infra.Migrate(ctx, dbPool); err != nil {
		log.WithError(err).Fatal("migrate")
	}

	var index location.Index = location.NewMemoryIndex()
	if cfg.Redis.Addr != "" {
		rdb, err := infra.NewRedis(ctx, cfg.Redis.Addr)
		if err != nil {
			log.WithError(err).Fatal("redis init")
		}
		defer rdb.Close()
		index = location.NewRedisIndex(rdb)
	}

	reg := infra.NewRegistry()

	pricingSvc := pricing.NewService(pricing.NewStore(dbPool), pricing.Rate(cfg.Pricing))
	if err := pricingSvc.LoadRate(ctx, cfg.Pricing.City); err != nil {
		log.WithError(err).Warn("using configured rate")
	}

	presenceSvc := presence.NewService(presence.NewPGStore(dbPool), index, cfg.Presence, log)

	deps := ride.Deps{
		Store:    ride.NewPGStore(dbPool),
		Pricing:  pricingSvc,
		Presence: presenceSvc,
		Profiles: profile.NewPGStore(dbPool),
		Metrics:  ride.NewMetrics(reg),
	}
	if cfg.AMQP.URL != "" {
		broker, err := infra.NewAMQPPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange)
		if err != nil {
			log.WithError(err).Fatal("amqp init")
		}
		defer broker.Close()
		deps.Publisher = ride.NewBrokerPublisher(broker)
	}
	rideSvc := ride.NewService(deps, cfg.Ride, log)
	presenceSvc.SetActiveRides(rideSvc)

	router := httptransport.NewRouter(httptransport.RouterDeps{
		Rides:    rideSvc,
		Presence: presenceSvc,
		Pricing:  pricingSvc,
		Verifier: verifier,
		Registry: reg,
		Log:      log,
		HTTP:     cfg.HTTP,
	})

	go func() {
		if err := presenceSvc.RunReindexer(ctx, ""); err != nil {
			log.WithError(err).Error("presence reindexer stopped")
		}
	}()

	log.WithField("addr", cfg.HTTP.Addr).Info("listening")
	if err := httptransport.Run(ctx, httptransport.NewServer(cfg.HTTP.Addr, router)); err != nil {
		log.WithError(err).Fatal("http server")
	}
	log.Info("shut down")
}

func newVerifier(ctx context.Context, cfg config.Config) (infra.TokenVerifier, error) {
	if cfg.Auth.Mode == config.AuthModeFirebase {
		return infra.NewFirebaseVerifier(ctx, cfg.Auth.FirebaseProjectID, cfg.Auth.FirebaseCredentialsFile)
	}
	return infra.NewJWTVerifier(cfg.Auth.JWTSecret), nil
}
