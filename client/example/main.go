package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"

	"github.com/coffersTech/nanofilter/client"
	"github.com/coffersTech/nanofilter/value"
)

func main() {
	c := client.New(client.Options{
		ServerURL: "http://localhost:8088",
		Token:     "sk-dev-test-key",
	})

	batcher := client.NewBatcher(c, "app_logs", client.BatchOptions{})
	logger := slog.New(client.NewHandler(batcher, slog.LevelInfo))

	logger.Info("Hello from Go SDK", "user_id", 42, "status", "active")
	logger.Warn("This is a warning", "retry_count", 3)
	logger.Error("Something went wrong", "error", "connection refused")
	batcher.Close()

	rows, err := c.Find(context.Background(), "app_logs", client.Query{
		Filter: value.MustParseJSON(`{"level":{"$in":["WARN","ERROR"]}}`),
	})
	if err != nil {
		log.Fatal(err)
	}
	for _, r := range rows {
		fmt.Println(r.ID, r.Doc)
	}
}
