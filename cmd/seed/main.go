package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"golang.org/x/crypto/bcrypt"
)

// Seeds a demo account for manual testing against a fresh database.
func main() {
	godotenv.Load()
	dbURL := os.Getenv("POSTGRES_URL")
	if dbURL == "" {
		log.Fatal("POSTGRES_URL is required")
	}

	db, err := sqlx.Connect("postgres", dbURL)
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	username := "demo"
	password := "demo"

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("hash password: %v", err)
	}

	_, err = db.ExecContext(ctx,
		`INSERT INTO users (username, hash, cash) VALUES ($1, $2, 10000.00) ON CONFLICT (username) DO NOTHING`,
		username, string(hash))
	if err != nil {
		log.Fatalf("insert demo user: %v", err)
	}

	fmt.Printf("Seeded demo user %q with password %q and 10000.00 starting cash\n", username, password)
	fmt.Println("Login: POST /login {\"username\":\"demo\",\"password\":\"demo\"}")
}
