package main

import (
	"log"
	"os"

	"traffic-analytics/internal/api"
	"traffic-analytics/internal/cache"
	"traffic-analytics/internal/config"
)

func main() {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.yaml"
	}

	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	redisClient, err := cache.NewRedisClient(cfg.RedisAddr)
	if err != nil {
		log.Fatalf("Failed to connect to Redis at %s: %v", cfg.RedisAddr, err)
	}
	log.Printf("Connected to Redis at %s", cfg.RedisAddr)

	if ids, err := redisClient.ListSensors(); err != nil {
		log.Printf("Failed to list stored sensors: %v", err)
	} else {
		log.Printf("%d sensors available in store", len(ids))
	}

	// Run closes the Redis client once the server has drained.
	server := api.NewServer(redisClient, cfg)
	if err := server.Run(":" + cfg.Port); err != nil {
		log.Fatal(err)
	}
}
