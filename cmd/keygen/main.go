package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/af-corp/helmsman/internal/auth"
	"github.com/jackc/pgx/v5"
)

func main() {
	org := flag.String("org", "", "organization ID (required)")
	team := flag.String("team", "", "team ID (required)")
	user := flag.String("user", "", "user ID (optional, omit for service accounts)")
	name := flag.String("name", "", "human-friendly key name (required)")
	env := flag.String("env", "prod", "environment prefix")
	models := flag.String("models", "", "comma-separated model allow-list (empty = all models)")
	rpm := flag.Int("rpm", 0, "requests-per-minute limit (0 = service default)")
	spendLimit := flag.Int("daily-spend-cents", 0, "daily routing-spend limit in cents (0 = unlimited)")
	expires := flag.String("expires", "365d", "expiry duration (e.g., 365d, 720h)")
	dbURL := flag.String("db-url", "", "database URL (overrides env)")
	flag.Parse()

	if *org == "" || *team == "" || *name == "" {
		flag.Usage()
		fmt.Fprintln(os.Stderr, "\nerror: -org, -team, and -name are required")
		os.Exit(1)
	}

	// Generate key
	rawKey, err := auth.GenerateKey(*env)
	if err != nil {
		log.Fatalf("failed to generate key: %v", err)
	}

	keyHash := auth.HashKey(rawKey)
	keyPrefix := auth.KeyPrefix(rawKey)

	// Parse expiry
	dur, err := auth.ParseDuration(*expires)
	if err != nil {
		log.Fatalf("invalid expires: %v", err)
	}
	expiresAt := time.Now().Add(dur)

	// Connect to database
	dsn := *dbURL
	if dsn == "" {
		dsn = os.Getenv("DATABASE_URL")
	}
	if dsn == "" {
		host := envOrDefault("DB_HOST", "localhost")
		port := envOrDefault("DB_PORT", "5432")
		u := envOrDefault("DB_USER", "helmsman")
		pass := envOrDefault("DB_PASSWORD", "helmsman-dev")
		dbname := envOrDefault("DB_NAME", "helmsman")
		dsn = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", u, pass, host, port, dbname)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer conn.Close(ctx)

	allowList := []string{}
	if *models != "" {
		for _, m := range strings.Split(*models, ",") {
			if trimmed := strings.TrimSpace(m); trimmed != "" {
				allowList = append(allowList, trimmed)
			}
		}
	}
	allowedModels, _ := json.Marshal(allowList)

	// Insert key
	var keyID string
	err = conn.QueryRow(ctx, `
		INSERT INTO api_keys (key_hash, key_prefix, organization_id, team_id, user_id, name, allowed_models, rpm_limit, daily_spend_limit_cents, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`, keyHash, keyPrefix, *org, *team, nilIfEmpty(*user), *name, allowedModels, nilIfZero(*rpm), nilIfZero(*spendLimit), expiresAt).Scan(&keyID)
	if err != nil {
		log.Fatalf("failed to insert key: %v", err)
	}

	fmt.Println("=== HELMSMAN API Key Generated ===")
	fmt.Println()
	fmt.Printf("  Key ID:         %s\n", keyID)
	fmt.Printf("  Key Prefix:     %s\n", keyPrefix)
	fmt.Printf("  Organization:   %s\n", *org)
	fmt.Printf("  Team:           %s\n", *team)
	if *user != "" {
		fmt.Printf("  User:           %s\n", *user)
	}
	if len(allowList) > 0 {
		fmt.Printf("  Allowed Models: %s\n", strings.Join(allowList, ", "))
	}
	fmt.Printf("  Expires:        %s\n", expiresAt.Format(time.RFC3339))
	fmt.Println()
	fmt.Println("  API Key (save this — it will NOT be shown again):")
	fmt.Printf("  %s\n", rawKey)
	fmt.Println()
	fmt.Println("==================================")
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nilIfZero(v int) *int {
	if v <= 0 {
		return nil
	}
	return &v
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
