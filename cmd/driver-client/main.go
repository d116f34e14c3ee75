package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"loop-drive/config"
	"loop-drive/internal/domain"
	"loop-drive/internal/geocode"
	"loop-drive/internal/location"
	"loop-drive/internal/rest"
	"loop-drive/internal/route"
	"loop-drive/internal/session"
	"loop-drive/pkg"
)

func main() {
	slogger := pkg.CustomSlog("driver-client")
	cfg, err := config.ParseConfig("config.yml")
	if err != nil {
		slogger.Error("cannot parse config", "action", "parse config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	restClient := rest.NewClient(slogger, cfg.BackendCfg.BaseURL)

	login, err := restClient.Login(ctx, os.Getenv("DRIVER_EMAIL"), os.Getenv("DRIVER_PASSWORD"))
	if err != nil {
		slogger.Error("login failed", "error", err)
		os.Exit(1)
	}
	if claims, err := pkg.DecodeSessionClaims(login.Token); err == nil {
		slogger.Info("logged in", "user_id", claims.UserID, "role", claims.Role)
	}

	details, err := restClient.DriverDetails(ctx)
	if err != nil {
		slogger.Error("cannot fetch driver details", "error", err)
		os.Exit(1)
	}
	driver := details.Session()

	presence, err := restClient.DriverPresence(ctx)
	if err != nil {
		slogger.Warn("cannot fetch driver presence", "error", err)
	} else {
		slogger.Info("driver presence", "presence", string(presence))
	}

	provider := location.NewSimProvider(domain.LatLng{Lat: 43.6532, Lng: -79.3832}, 0.0001, 0.0001)
	router := route.NewMapboxRouter(cfg.MapboxCfg.DirectionsURL, cfg.MapboxCfg.AccessToken)
	canvas := route.NewMemoryCanvas()
	geocoder := geocode.NewReverser(slogger, cfg.MapboxCfg.GeocodingURL, cfg.MapboxCfg.AccessToken)

	sess := session.New(slogger, cfg, restClient, driver, provider, router, canvas, geocoder)
	if err := sess.Run(ctx); err != nil && ctx.Err() == nil {
		slogger.Error("session ended with error", "error", err)
	}

	// best effort: tell the backend we left
	if err := restClient.GoOffline(context.Background()); err != nil {
		slogger.Warn("go-offline failed", "error", err)
	}
	slogger.Info("driver client stopped", "driver_id", driver.DriverID)
}
