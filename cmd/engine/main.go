package main

import (
	"encoding/hex"
	"log"
	"os"

	"github.com/rawblock/oblivious-band-join/internal/aead"
	"github.com/rawblock/oblivious-band-join/internal/api"
	"github.com/rawblock/oblivious-band-join/internal/db"
	"github.com/rawblock/oblivious-band-join/internal/dispatch"
	"github.com/rawblock/oblivious-band-join/internal/engine"
)

func main() {
	log.Println("Starting oblivious band-join engine...")

	cfg := engine.DefaultConfig()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("FATAL: invalid engine configuration: %v", err)
	}

	eng, err := engine.New(cfg, newCollaborator())
	if err != nil {
		log.Fatalf("FATAL: failed to initialize engine: %v", err)
	}

	var dbConn *db.PostgresStore
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		dbConn, err = db.Connect(dbURL)
		if err != nil {
			log.Printf("Warning: failed to connect to PostgreSQL, continuing without audit persistence. Error: %v", err)
		} else {
			defer dbConn.Close()
			if err := dbConn.InitSchema(); err != nil {
				log.Printf("Warning: DB schema init failed: %v", err)
			}
		}
	} else {
		log.Println("DATABASE_URL not set — running without audit persistence")
	}

	// Setup WebSocket Hub for phase-progress broadcasts.
	wsHub := api.NewHub()
	go wsHub.Run()

	r := api.SetupRouter(eng, dbConn, wsHub)

	port := getEnvOrDefault("PORT", "5339")
	log.Printf("Engine running on :%s\n", port)
	if err := r.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// newCollaborator builds the AES-CTR confidentiality collaborator from a
// 128-bit key given as 32 hex characters in ENGINE_AES_KEY. If unset,
// tables are evaluated in plaintext: returning a bare nil here (rather
// than a nil *aead.Cipher boxed into the interface) keeps
// dispatch.Dispatcher's "Collaborator == nil" check meaningful — the
// join's correctness never depends on confidentiality (spec §1), only on
// the core's obliviousness, so plaintext mode is safe for local
// development.
func newCollaborator() dispatch.Collaborator {
	keyHex := os.Getenv("ENGINE_AES_KEY")
	if keyHex == "" {
		log.Println("ENGINE_AES_KEY not set — tables will be evaluated in plaintext")
		return nil
	}
	if len(keyHex) != 32 {
		log.Fatalf("FATAL: ENGINE_AES_KEY must be 32 hex characters (16 bytes), got %d chars", len(keyHex))
	}
	var key [16]byte
	if _, err := hex.Decode(key[:], []byte(keyHex)); err != nil {
		log.Fatalf("FATAL: ENGINE_AES_KEY is not valid hex: %v", err)
	}
	cipher, err := aead.NewCipher(key)
	if err != nil {
		log.Fatalf("FATAL: failed to initialize AES-CTR cipher: %v", err)
	}
	return cipher
}

// getEnvOrDefault returns the env var value or a safe default for
// non-secret settings.
func getEnvOrDefault(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
