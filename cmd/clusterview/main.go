package main

import (
	"log"

	"github.com/MrSnakeDoc/clusterview/internal/app"
)

func main() {
	if err := app.New().Run(); err != nil {
		log.Fatalf("❌ clusterview failed to start: %v", err)
	}
}
