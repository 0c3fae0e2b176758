package main

import (
	"log"

	"wicket/cmd/internal/app"

	"github.com/joho/godotenv"
)

func main() {
	// Best-effort local overrides; production relies on real env vars.
	_ = godotenv.Load(".env")

	if err := app.Run(); err != nil {
		log.Fatal(err)
	}
}
