package main

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/jackc/pgx/v5"

	"github.com/ImAdityaa12/storex-backend/internal/config"
	"github.com/ImAdityaa12/storex-backend/internal/db"
	"github.com/ImAdityaa12/storex-backend/internal/store"
)

// Seeds a development database with an admin account, a demo customer
// and a handful of products carrying quantity discount ladders.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := db.Migrate(cfg.DatabaseURL); err != nil {
		log.Fatalf("run migrations: %v", err)
	}

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, "storex-seeder")
	if err != nil {
		log.Fatalf("connect database: %v", err)
	}
	defer pool.Close()

	queries := store.New(pool)

	seedUsers(ctx, queries)
	seedProducts(ctx, queries)

	log.Println("seeding complete")
}

type seedUser struct {
	name     string
	username string
	email    string
	password string
	role     string
}

func seedUsers(ctx context.Context, queries *store.Store) {
	users := []seedUser{
		{name: "Admin", username: "admin", email: "admin@storex.local", password: "admin12345", role: "admin"},
		{name: "Demo Customer", username: "demo", email: "demo@storex.local", password: "demo12345", role: "user"},
	}
	for _, u := range users {
		if _, err := queries.GetUserByEmail(ctx, u.email); err == nil {
			log.Printf("user %s already present, skipping", u.email)
			continue
		} else if !errors.Is(err, pgx.ErrNoRows) {
			log.Fatalf("look up user %s: %v", u.email, err)
		}
		hash, err := argon2id.CreateHash(u.password, argon2id.DefaultParams)
		if err != nil {
			log.Fatalf("hash password: %v", err)
		}
		if _, err := queries.CreateUser(ctx, store.CreateUserParams{
			Name:         u.name,
			Username:     u.username,
			Email:        u.email,
			PasswordHash: hash,
			Role:         u.role,
		}); err != nil {
			log.Fatalf("create user %s: %v", u.email, err)
		}
		log.Printf("created user %s (%s)", u.email, u.role)
	}
}

type seedProduct struct {
	title     string
	brand     string
	category  string
	price     int64
	salePrice *int64
	stock     int32
	tiers     []store.ReplaceTierParams
}

func seedProducts(ctx context.Context, queries *store.Store) {
	products := []seedProduct{
		{
			title: "AA Battery", brand: "VoltMax", category: "electronics",
			price: 5, stock: 10,
			tiers: []store.ReplaceTierParams{{MinQuantity: 6, BundlePrice: 21}},
		},
		{
			title: "Copy Paper Ream", brand: "PaperWorks", category: "office",
			price: 80, stock: 200,
			tiers: []store.ReplaceTierParams{
				{MinQuantity: 5, BundlePrice: 360},
				{MinQuantity: 10, BundlePrice: 650},
			},
		},
		{
			title: "Ballpoint Pen", brand: "Scriva", category: "office",
			price: 12, salePrice: ptr(10), stock: 500,
			tiers: []store.ReplaceTierParams{{MinQuantity: 12, BundlePrice: 100}},
		},
		{
			title: "Desk Lamp", brand: "Lumo", category: "home",
			price: 450, stock: 25,
		},
	}
	for _, p := range products {
		existing, err := queries.ListProducts(ctx, store.ListProductsParams{Search: p.title, Limit: 1})
		if err != nil {
			log.Fatalf("look up product %s: %v", p.title, err)
		}
		if len(existing) > 0 {
			log.Printf("product %s already present, skipping", p.title)
			continue
		}
		created, err := queries.CreateProduct(ctx, store.CreateProductParams{
			Title:      p.title,
			Brand:      store.ToText(p.brand),
			Category:   store.ToText(p.category),
			Price:      p.price,
			SalePrice:  store.ToInt8(p.salePrice),
			TotalStock: p.stock,
		})
		if err != nil {
			log.Fatalf("create product %s: %v", p.title, err)
		}
		if len(p.tiers) > 0 {
			if err := queries.ReplaceDiscountTiers(ctx, created.ID, p.tiers); err != nil {
				log.Fatalf("set discount tiers for %s: %v", p.title, err)
			}
		}
		log.Printf("created product %s", p.title)
	}
}

func ptr(v int64) *int64 { return &v }
