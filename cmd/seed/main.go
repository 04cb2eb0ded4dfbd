package main

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"flag"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/jmobrien1/document-markdown-converter/internal/config"
	"github.com/jmobrien1/document-markdown-converter/internal/repository/postgres"
)

func main() {
	// Parse command-line flags
	dropTables := flag.Bool("drop-tables", false, "Drop all tables before setup (fresh start)")
	schemaOnly := flag.Bool("schema-only", false, "Only set up schema, don't create a pro user")
	proEmail := flag.String("pro-user", "", "Email for a pro user to create (prints a fresh API key)")
	proPages := flag.Int("pro-pages", config.DefaultProPagesLimit, "Monthly page budget for the created pro user")
	flag.Parse()

	// Load .env file
	_ = godotenv.Load()

	cfg := config.Load()

	// SAFETY: Prevent destructive operations in production
	if cfg.Environment == "prod" && *dropTables {
		log.Fatalf("🚫 BLOCKED: Cannot run --drop-tables in production environment")
	}

	log.Printf("🌱 Setting up database (environment: %s, prefix: %s)", cfg.Environment, cfg.TablePrefix)

	ctx := context.Background()
	pool, err := postgres.CreateConnectionPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	tables := postgres.NewTableNames(cfg.TablePrefix)

	if *dropTables {
		log.Println("🗑️  Dropping all tables...")
		if err := dropAllTables(ctx, pool, tables); err != nil {
			log.Fatalf("Failed to drop tables: %v", err)
		}
		log.Println("✅ Tables dropped")
	}

	log.Println("📋 Ensuring database schema is up to date...")
	if err := runSchema(ctx, pool, tables); err != nil {
		log.Fatalf("Failed to run schema: %v", err)
	}
	log.Println("✅ Schema ready")

	if *schemaOnly || *proEmail == "" {
		log.Println("✅ Setup complete")
		return
	}

	key, err := createProUser(ctx, pool, tables, *proEmail, *proPages)
	if err != nil {
		log.Fatalf("Failed to create pro user: %v", err)
	}
	log.Printf("✅ Pro user %s created (monthly pages: %d)", *proEmail, *proPages)
	// The key is shown once and stored only as a hash.
	fmt.Printf("API key: %s\n", key)
}

// runSchema creates tables if they don't exist
func runSchema(ctx context.Context, pool *pgxpool.Pool, tables *postgres.TableNames) error {
	schema := `
		CREATE TABLE IF NOT EXISTS ` + tables.Users + ` (
			id TEXT PRIMARY KEY,
			email TEXT NOT NULL,
			api_key_hash TEXT,
			is_pro BOOLEAN NOT NULL DEFAULT FALSE,
			pro_pages_used INTEGER NOT NULL DEFAULT 0,
			pro_pages_limit INTEGER NOT NULL DEFAULT 0,
			usage_month DATE NOT NULL DEFAULT date_trunc('month', now()),
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			last_seen_at TIMESTAMPTZ
		);
		CREATE UNIQUE INDEX IF NOT EXISTS ` + tables.Users + `_api_key_hash_idx
			ON ` + tables.Users + ` (api_key_hash) WHERE api_key_hash IS NOT NULL;

		CREATE TABLE IF NOT EXISTS ` + tables.Usage + ` (
			id BIGSERIAL PRIMARY KEY,
			session_id TEXT NOT NULL UNIQUE,
			ip_address TEXT,
			conversions_today INTEGER NOT NULL DEFAULT 0,
			last_conversion TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);

		CREATE TABLE IF NOT EXISTS ` + tables.Jobs + ` (
			id UUID PRIMARY KEY,
			user_id TEXT REFERENCES ` + tables.Users + `(id),
			session_id TEXT,
			original_filename TEXT NOT NULL,
			file_size BIGINT NOT NULL DEFAULT 0,
			file_type TEXT NOT NULL DEFAULT '',
			object_key TEXT NOT NULL,
			conversion_type TEXT NOT NULL DEFAULT 'standard',
			status TEXT NOT NULL DEFAULT 'pending',
			error_message TEXT,
			markdown TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			started_at TIMESTAMPTZ,
			completed_at TIMESTAMPTZ,
			processing_time DOUBLE PRECISION,
			CHECK (num_nonnulls(user_id, session_id) = 1)
		);
		CREATE INDEX IF NOT EXISTS ` + tables.Jobs + `_user_created_idx
			ON ` + tables.Jobs + ` (user_id, created_at DESC) WHERE user_id IS NOT NULL;
		CREATE INDEX IF NOT EXISTS ` + tables.Jobs + `_session_idx
			ON ` + tables.Jobs + ` (session_id) WHERE session_id IS NOT NULL;
	`

	_, err := pool.Exec(ctx, schema)
	return err
}

// dropAllTables drops all tables in reverse order (to respect foreign keys)
func dropAllTables(ctx context.Context, pool *pgxpool.Pool, tables *postgres.TableNames) error {
	for _, table := range []string{tables.Jobs, tables.Usage, tables.Users} {
		if _, err := pool.Exec(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE"); err != nil {
			return fmt.Errorf("drop %s: %w", table, err)
		}
	}
	return nil
}

// createProUser inserts a pro account and returns its freshly generated
// API key. Only the sha256 of the key is stored.
func createProUser(ctx context.Context, pool *pgxpool.Pool, tables *postgres.TableNames, email string, pages int) (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate key: %w", err)
	}
	key := "mk_" + hex.EncodeToString(raw)
	digest := sha256.Sum256([]byte(key))

	query := `
		INSERT INTO ` + tables.Users + ` (id, email, api_key_hash, is_pro, pro_pages_limit, usage_month)
		VALUES ($1, $2, $3, TRUE, $4, date_trunc('month', now()))
		ON CONFLICT (id) DO UPDATE
		SET api_key_hash = EXCLUDED.api_key_hash,
		    is_pro = TRUE,
		    pro_pages_limit = EXCLUDED.pro_pages_limit
	`
	// Stable id derived from the email keeps reruns idempotent.
	emailDigest := sha256.Sum256([]byte(email))
	id := "seed-" + hex.EncodeToString(emailDigest[:8])

	if _, err := pool.Exec(ctx, query, id, email, hex.EncodeToString(digest[:]), pages); err != nil {
		return "", err
	}
	return key, nil
}
