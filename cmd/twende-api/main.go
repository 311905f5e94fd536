// README: Entry point; loads config, wires services, and runs the HTTP server.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"twende/internal/config"
	httptransport "twende/internal/http"
	"twende/internal/events"
	"twende/internal/infra"
	"twende/internal/logging"
	"twende/internal/maps"
	"twende/internal/modules/assist"
	"twende/internal/modules/errorlog"
	"twende/internal/modules/geo"
	"twende/internal/modules/location"
	"twende/internal/modules/matching"
	"twende/internal/modules/notify"
	"twende/internal/modules/payment"
	"twende/internal/modules/pricing"
	"twende/internal/modules/ride"
	"twende/internal/modules/user"
	"twende/internal/types"
)

// settlementActor is recorded as the actor of rides moved on by a payment callback.
const settlementActor types.ID = "mpesa"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("load config")
	}
	log := logging.New(cfg.App.Name, cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Firebase.ProjectID == "" {
		log.Fatal("TWENDE_FIREBASE_PROJECT_ID is required")
	}
	fb, err := infra.NewFirebase(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile)
	if err != nil {
		log.WithError(err).Fatal("firebase init")
	}
	verifier, err := fb.Verifier(ctx)
	if err != nil {
		log.WithError(err).Fatal("firebase auth")
	}
	fcm, err := fb.Messaging(ctx)
	if err != nil {
		log.WithError(err).Fatal("firebase messaging")
	}

	dbPool, err := infra.NewDB(ctx, cfg.DB.DSN)
	if err != nil {
		log.WithError(err).Fatal("database")
	}
	defer dbPool.Close()

	redisClient := infra.NewRedis(cfg.Redis.Addr, cfg.Redis.Password)
	defer redisClient.Close()

	publisher := events.New(cfg.Kafka.Brokers, cfg.Kafka.RideTopic, cfg.Kafka.LocationTopic, log.WithField("module", "events"))
	defer publisher.Close()

	var calc geo.Calculator = geo.HaversineCalculator{SpeedKmh: cfg.Geo.AverageSpeedKmh}
	var geocoder ride.Geocoder
	if cfg.Maps.APIKey != "" {
		routes, err := maps.NewRouteService(cfg.Maps.APIKey)
		if err != nil {
			log.WithError(err).Fatal("maps routes")
		}
		cached := geo.NewCachedCalculator(geo.NewRouteCalculator(routes), redisClient, cfg.Geo.CacheTTL)
		calc = geo.Fallback(cached, calc)

		gc, err := maps.NewGeocodeService(cfg.Maps.APIKey)
		if err != nil {
			log.WithError(err).Fatal("maps geocoding")
		}
		geocoder = gc
	} else {
		log.Warn("maps api key not set; using straight-line distances and no geocoding")
	}

	userSvc := user.NewService(user.NewStore(dbPool), log.WithField("module", "user"))

	pricingSvc := pricing.NewService(pricing.NewStore(dbPool), pricing.Rate{
		Name:        pricing.DefaultRateName,
		BaseFare:    cfg.Pricing.BaseFare,
		PerKm:       cfg.Pricing.PerKm,
		MinimumFare: cfg.Pricing.MinimumFare,
		Currency:    cfg.Pricing.Currency,
	}, log.WithField("module", "pricing"))

	matchingSvc := matching.NewService(matching.NewStore(redisClient), userSvc, cfg.Matching, log.WithField("module", "matching"))

	locationSvc := location.NewService(location.NewStore(dbPool), userSvc, matchingSvc, publisher, log.WithField("module", "location"))

	notifySvc := notify.NewService(notify.NewStore(dbPool), userSvc, notify.NewFCMPusher(fcm), log.WithField("module", "notify"))

	errorSvc := errorlog.NewService(errorlog.NewStore(dbPool), log.WithField("module", "errorlog"))

	rideStore := ride.NewStore(dbPool)
	paymentSvc := payment.NewService(
		payment.NewStore(dbPool),
		payment.NewMpesaClient(cfg.Mpesa),
		rideStore,
		userSvc,
		payment.Options{
			CallbackURL: cfg.Mpesa.CallbackURL,
			ResultURL:   cfg.Mpesa.ResultURL,
			ClaimTTL:    cfg.Payment.ClaimTTL,
		},
		log.WithField("module", "payment"),
	)

	rideSvc := ride.NewService(ride.Deps{
		Store:      rideStore,
		Users:      userSvc,
		Locations:  locationSvc,
		Fares:      pricingSvc,
		Calculator: calc,
		Geocoder:   geocoder,
		Publisher:  publisher,
		Payments: ride.PaymentStarterFunc(func(ctx context.Context, rideID types.ID) error {
			_, err := paymentSvc.StartPayment(ctx, rideID)
			return err
		}),
		Notifier: notifySvc,
		Log:      log.WithField("module", "ride"),
	})

	// A confirmed M-Pesa payment moves the ride on to rating.
	paymentSvc.SetSettler(payment.SettlerFunc(func(ctx context.Context, rideID types.ID) error {
		_, err := rideSvc.Transition(ctx, ride.TransitionCommand{
			RideID:  rideID,
			Event:   ride.EventRate,
			ActorID: settlementActor,
			Admin:   true,
		})
		return err
	}))

	deps := httptransport.RouterDeps{
		Verifier: verifier,
		Log:      log.WithField("module", "http"),
		Accounts: userSvc,
		Rides:    rideSvc,
		Location: locationSvc,
		Nearby:   matchingSvc,
		Payments: paymentSvc,
		Messages: notifySvc,
		Errors:   errorSvc,
		Drivers:  userSvc,
		Index:    matchingSvc,
		Rates:    pricingSvc,
	}
	if cfg.Assist.APIKey != "" {
		parser, err := assist.NewGeminiParser(ctx, cfg.Assist.APIKey, cfg.Assist.Model)
		if err != nil {
			log.WithError(err).Fatal("init assistant")
		}
		defer parser.Close()
		deps.Assist = assist.NewService(parser, assist.NewStore(dbPool), rideSvc, userSvc, cfg.Assist.MonthlyQuota, log.WithField("module", "assist"))
	} else {
		log.Info("assistant disabled: no api key")
	}
	router := httptransport.NewRouter(deps)

	server := httptransport.NewServer(cfg.HTTP.Addr, router, log)
	if err := server.Run(ctx); err != nil {
		log.WithError(err).Fatal("http server")
	}
}
