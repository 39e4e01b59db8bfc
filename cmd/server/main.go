package main

import (
	"log"

	"procurement-backend/internal/config"
	"procurement-backend/internal/database"
	"procurement-backend/internal/server"
	"procurement-backend/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	db := database.Init(cfg.DatabaseDSN)

	store, err := storage.NewLocalStore(cfg.StoragePath)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}

	app := server.New(server.Wire(cfg, db, store))

	log.Println("Server listening on port:", cfg.HTTPPort)
	if err := app.Listen(":" + cfg.HTTPPort); err != nil {
		log.Fatal(err)
	}
}
