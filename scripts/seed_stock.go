// Package main implements a standalone seed script that populates the
// FulfillmentGo inventory service database with 5,000 stock ledger rows,
// complete with SKUs, on-hand counts, and reorder levels.
//
// Run: go run scripts/seed_stock.go
//   (from the repo root, or: cd scripts && go run seed_stock.go)
package main

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log"
	"math/rand"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ---------------------------------------------------------------------------
// Constants
// ---------------------------------------------------------------------------

const (
	totalProducts = 5000
	batchSize     = 500
)

// ---------------------------------------------------------------------------
// Configuration
// ---------------------------------------------------------------------------

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// ---------------------------------------------------------------------------
// Deterministic UUID generation from an index
// ---------------------------------------------------------------------------

// deterministicUUID produces a stable UUID-shaped string from a namespace and
// an integer index so that re-runs always produce the same ledger row IDs.
func deterministicUUID(namespace string, index int) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s:%d", namespace, index)))
	hex := fmt.Sprintf("%x", h[:16])
	return fmt.Sprintf("%s-%s-4%s-%x%s-%s",
		hex[0:8],
		hex[8:12],
		hex[13:16],
		0x8|(h[8]&0x3),
		hex[17:20],
		hex[20:32],
	)
}

// ---------------------------------------------------------------------------
// Product families for realistic SKUs
// ---------------------------------------------------------------------------

type familyDef struct {
	Name   string
	Prefix string
	// Weight is this family's share of total products (sums to 1.0).
	Weight float64
}

var families = []familyDef{
	{"Apparel", "APP", 0.30},
	{"Footwear", "FTW", 0.15},
	{"Accessories", "ACC", 0.15},
	{"Home", "HOM", 0.20},
	{"Electronics", "ELC", 0.10},
	{"Beauty", "BTY", 0.10},
}

func familyForIndex(index int, rng *rand.Rand) familyDef {
	_ = index
	roll := rng.Float64()
	acc := 0.0
	for _, f := range families {
		acc += f.Weight
		if roll < acc {
			return f
		}
	}
	return families[len(families)-1]
}

// ---------------------------------------------------------------------------
// Row generation
// ---------------------------------------------------------------------------

type stockRow struct {
	ID           string
	ProductID    string
	SKU          string
	OnHand       int
	ReorderLevel int
}

func generateRow(index int, rng *rand.Rand) stockRow {
	family := familyForIndex(index, rng)

	// Skew on-hand so roughly a tenth of the catalog sits at or below its
	// reorder level and a few rows are fully depleted.
	onHand := rng.Intn(500)
	reorderLevel := 10 + rng.Intn(40)
	switch {
	case index%50 == 0:
		onHand = 0
	case index%10 == 0:
		onHand = rng.Intn(reorderLevel + 1)
	}

	return stockRow{
		ID:           deterministicUUID("stock", index),
		ProductID:    deterministicUUID("product", index),
		SKU:          fmt.Sprintf("%s-%06d", family.Prefix, index),
		OnHand:       onHand,
		ReorderLevel: reorderLevel,
	}
}

// ---------------------------------------------------------------------------
// Batch insert
// ---------------------------------------------------------------------------

func insertBatch(ctx context.Context, pool *pgxpool.Pool, rows []stockRow) error {
	var sb strings.Builder
	sb.WriteString("INSERT INTO stock (id, product_id, sku, on_hand, reserved, reorder_level, updated_at) VALUES ")

	args := make([]any, 0, len(rows)*5)
	for i, row := range rows {
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i * 5
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d, 0, $%d, now())",
			base+1, base+2, base+3, base+4, base+5)
		args = append(args, row.ID, row.ProductID, row.SKU, row.OnHand, row.ReorderLevel)
	}
	sb.WriteString(" ON CONFLICT (product_id) DO NOTHING")

	_, err := pool.Exec(ctx, sb.String(), args...)
	return err
}

// ---------------------------------------------------------------------------
// Main
// ---------------------------------------------------------------------------

func main() {
	host := getEnv("POSTGRES_HOST", "localhost")
	port := getEnv("POSTGRES_PORT", "5432")
	user := getEnv("POSTGRES_USER", "fulfillment")
	pass := getEnv("POSTGRES_PASSWORD", "fulfillment_secret")
	dbname := getEnv("INVENTORY_DB_NAME", "inventory_db")

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", user, pass, host, port, dbname)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		log.Fatalf("connect to postgres: %v", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		log.Fatalf("ping postgres: %v", err)
	}
	log.Printf("connected to %s/%s", host, dbname)

	// Seeded generator: re-runs produce identical rows, and ON CONFLICT
	// makes the script idempotent.
	rng := rand.New(rand.NewSource(42))

	start := time.Now()
	inserted := 0
	batch := make([]stockRow, 0, batchSize)

	for i := 0; i < totalProducts; i++ {
		batch = append(batch, generateRow(i, rng))
		if len(batch) == batchSize {
			if err := insertBatch(ctx, pool, batch); err != nil {
				log.Fatalf("insert batch ending at %d: %v", i, err)
			}
			inserted += len(batch)
			batch = batch[:0]
			log.Printf("seeded %d/%d stock rows", inserted, totalProducts)
		}
	}
	if len(batch) > 0 {
		if err := insertBatch(ctx, pool, batch); err != nil {
			log.Fatalf("insert final batch: %v", err)
		}
		inserted += len(batch)
	}

	log.Printf("done: %d stock rows in %s", inserted, time.Since(start).Round(time.Millisecond))
}
