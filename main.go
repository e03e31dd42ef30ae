package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gopkg.in/yaml.v2"

	"speakerid/db"
	shttp "speakerid/http"
	"speakerid/logger"
	"speakerid/registry"
)

type Config struct {
	Server struct {
		Port           int      `yaml:"port"`
		TimeoutSeconds int      `yaml:"timeout_seconds"`
		TrainMinutes   int      `yaml:"train_timeout_minutes"`
		AllowedOrigins []string `yaml:"allowed_origins"`
		CacheSize      int      `yaml:"cache_size"`
	} `yaml:"server"`
	Paths struct {
		DataDir   string `yaml:"data_dir"`
		ModelsDir string `yaml:"models_dir"`
	} `yaml:"paths"`
	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`
	Log struct {
		Level string `yaml:"level"`
		File  string `yaml:"file"`
	} `yaml:"log"`
}

func main() {
	config, err := loadConfig("config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := logger.Init(logger.Config{Level: config.Log.Level, File: config.Log.File}); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	if err := db.InitDB(config.Database.Path); err != nil {
		logger.L().Fatalw("could not initialize database", "path", config.Database.Path, "error", err)
	}
	defer db.Close()
	logger.L().Infow("database initialized", "path", config.Database.Path)

	if err := os.MkdirAll(config.Paths.ModelsDir, 0o755); err != nil {
		logger.L().Fatalw("could not create models directory", "error", err)
	}

	reg := registry.New(config.Paths.ModelsDir)
	loaded := reg.LoadAllAvailable()
	reg.LoadSpeakerLabels()
	logger.L().Infow("model registry ready", "models", loaded, "speakers", len(reg.Speakers()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Pick up models written by the training CLI without a restart.
	watcher, err := registry.NewWatcher(ctx, reg)
	if err != nil {
		logger.L().Warnw("models directory watch disabled", "error", err)
	} else {
		defer watcher.Close()
	}

	serverConfig := shttp.DefaultServerConfig()
	serverConfig.DataDir = config.Paths.DataDir
	serverConfig.ModelsDir = config.Paths.ModelsDir
	if config.Server.Port > 0 {
		serverConfig.Port = config.Server.Port
	}
	if config.Server.TimeoutSeconds > 0 {
		serverConfig.Timeout = time.Duration(config.Server.TimeoutSeconds) * time.Second
	}
	if config.Server.TrainMinutes > 0 {
		serverConfig.TrainTimeout = time.Duration(config.Server.TrainMinutes) * time.Minute
	}
	if len(config.Server.AllowedOrigins) > 0 {
		serverConfig.AllowedOrigins = config.Server.AllowedOrigins
	}
	if config.Server.CacheSize > 0 {
		serverConfig.CacheSize = config.Server.CacheSize
	}

	server, err := shttp.NewServer(serverConfig, reg)
	if err != nil {
		logger.L().Fatalw("could not create http server", "error", err)
	}

	go func() {
		if err := server.Start(); err != nil {
			logger.L().Fatalw("http server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.L().Info("shutting down")

	if err := server.Stop(); err != nil {
		logger.L().Warnw("server forced to shutdown", "error", err)
	}
}

func loadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var config Config
	if err := yaml.NewDecoder(file).Decode(&config); err != nil {
		return nil, err
	}
	return &config, nil
}
