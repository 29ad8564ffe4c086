package main

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"idea-auction/internal/aigen"
	"idea-auction/internal/auction"
	"idea-auction/internal/config"
	"idea-auction/internal/ledger"
	"idea-auction/internal/logging"
	"idea-auction/internal/persona"
	"idea-auction/internal/store"
	httptransport "idea-auction/internal/transport/http"
	"idea-auction/internal/ws"
)

func main() {
	app, err := config.LoadApp()
	if err != nil {
		panic(err)
	}
	logging.Init(app.Log)
	cfg := app.Server

	st, err := store.New(cfg.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("store init failed")
	}
	ctx := context.Background()
	if err := st.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("db ping failed")
	}
	if err := st.EnsureSchema(ctx); err != nil {
		log.Fatal().Err(err).Msg("ensure schema failed")
	}

	catalog, err := persona.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("persona catalog load failed")
	}
	log.Info().Int("personas", catalog.Len()).Msg("persona catalog loaded")

	dispatcher := aigen.NewDispatcher(
		aigen.DispatcherConfig{
			RatesPer1KUSD: map[string]float64{
				"openai": cfg.OpenAIPricePer1K,
				"kimi":   cfg.KimiPricePer1K,
			},
			HistoryWindow: app.Auction.HistoryWindow,
		},
		aigen.NewOpenAI(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.OpenAIModel),
		aigen.NewKimi(cfg.KimiBaseURL, cfg.KimiAPIKey, cfg.KimiModel),
	)

	led := ledger.New(st)
	hub := ws.NewHub(cfg.MaxConnections, cfg.MaxViewersPerSession)
	registry := auction.NewRegistry(
		auction.ParamsFromConfig(app.Auction),
		auction.LimitsFromConfig(app.Auction),
		dispatcher, catalog, st, hub)
	registry.SetRewarder(led)
	registry.StartReaper(ctx)

	wsServer := ws.NewServer(ws.ConfigFromServer(cfg, app.Auction.GuessCost), registry, hub, catalog, st, led)
	wsServer.StartSweeper(ctx)

	r := httptransport.NewRouter(cfg, registry, catalog, hub, wsServer.HandleWS, st)
	httptransport.LogRoutes(r)

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	log.Info().Str("addr", cfg.HTTPAddr).Msg("http listening")
	log.Fatal().Err(server.ListenAndServe()).Msg("server stopped")
}
