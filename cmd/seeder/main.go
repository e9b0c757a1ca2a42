// Command seeder provisions an upload API key bound to a Discord user:
//
//	POSTGRES_URL=... go run ./cmd/seeder -discord-user 123456789 -player-id 7777
//
// Prints the plaintext key once; only its hash is stored.
package main

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/jackc/pgx/v5"

	"github.com/wowsvault/replay-api/internal/store"
)

func main() {
	discordUser := flag.String("discord-user", "", "Discord user id to bind the key to")
	playerID := flag.Int64("player-id", 0, "WoWS player id of the uploader")
	migrate := flag.Bool("migrate", true, "run schema migrations first")
	flag.Parse()

	if *discordUser == "" || *playerID == 0 {
		flag.Usage()
		os.Exit(2)
	}

	postgresURL := os.Getenv("POSTGRES_URL")
	if postgresURL == "" {
		log.Fatal("POSTGRES_URL is required")
	}

	if *migrate {
		if err := store.Migrate(postgresURL); err != nil {
			log.Fatalf("migrate: %v", err)
		}
	}

	ctx := context.Background()
	conn, err := pgx.Connect(ctx, postgresURL)
	if err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer conn.Close(ctx)

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		log.Fatalf("generate key: %v", err)
	}
	token := hex.EncodeToString(raw)
	hash := sha256.Sum256([]byte(token))

	_, err = conn.Exec(ctx, `
		INSERT INTO api_keys (token_hash, discord_user_id, player_id, is_active)
		VALUES ($1, $2, $3, true)
	`, hex.EncodeToString(hash[:]), *discordUser, *playerID)
	if err != nil {
		log.Fatalf("insert key: %v", err)
	}

	fmt.Printf("API key for %s (player %d):\n%s\n", *discordUser, *playerID, token)
}
