package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"socialclient/api/handlers"
	"socialclient/api/middleware"
	"socialclient/api/routes"
	"socialclient/config"
	"socialclient/logger"
	"socialclient/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "config.yaml", "Path to the configuration file")
	flag.Parse()

	err := config.LoadConfig(configPath)
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}
	if err := logger.Init(config.AppConfig.Logs.Level); err != nil {
		panic("Failed to init logger: " + err.Error())
	}
	defer logger.Sync()

	logger.Log.Info("Starting bridge...",
		zap.String("api", config.AppConfig.API.BaseURL),
		zap.String("storage", config.AppConfig.Storage.Driver))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := services.NewWSConnManager()
	client, err := services.NewClient(ctx, config.AppConfig, services.Options{
		Navigator: hub,
		Notifier:  services.MultiNotifier{services.LogNotifier{}, hub},
	})
	if err != nil {
		logger.Log.Fatal("Failed to build client", zap.Error(err))
	}
	defer client.Close()

	handlers.Bind(client, hub)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.PrometheusMiddleware(client.Session))
	routes.BridgeApi(router, client.Session, config.AppConfig.Bridge.AllowedOrigins)

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", config.AppConfig.Bridge.Host, config.AppConfig.Bridge.Port),
		Handler: router,
	}
	go func() {
		logger.Log.Info("Bridge listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Fatal("Bridge stopped", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Log.Info("Shutting down bridge...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log.Error("Bridge shutdown failed", zap.Error(err))
	}
}
