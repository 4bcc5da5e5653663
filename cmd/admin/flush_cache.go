package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	redisclient "github.com/tuanvle/txscope/internal/infra/redis"
)

func main() {
	_ = godotenv.Load()

	url := os.Getenv("REDIS_URL")
	if url == "" {
		url = "redis://localhost:6379/0"
	}

	client, err := redisclient.NewClient(redisclient.Config{
		URL:      url,
		Password: os.Getenv("REDIS_PASSWORD"),
	})
	if err != nil {
		panic(err)
	}
	defer client.Close()

	if err := client.FlushAll(context.Background()); err != nil {
		panic(err)
	}

	fmt.Println("Successfully flushed cache at", url)
}
