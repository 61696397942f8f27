//go:build ignore

// Package main is a development utility that generates a JWT signing secret and
// a random admin password with its bcrypt hash pre-computed. It prints a ready
// to paste .env block so a local database can be seeded without running the
// hash-password subcommand by hand. Do not reuse generated values in production.
//
// Usage: go run scripts/generate-key.go
package main

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log"

	"github.com/doubleh-portfolio/portfolio-api/internal/auth"
)

func randomString(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		log.Fatal(err)
	}
	return base64.RawURLEncoding.EncodeToString(b)
}

func main() {
	secret := randomString(48)
	password := randomString(18)

	hash, err := auth.HashPassword(password)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("Admin password: %s\n\n", password)
	fmt.Println("# .env")
	fmt.Printf("PORTFOLIO_JWT_SECRET=%s\n", secret)
	fmt.Println("PORTFOLIO_AUTH_ADMIN_USERNAME=admin")
	fmt.Printf("PORTFOLIO_AUTH_ADMIN_PASSWORD_HASH='%s'\n", hash)
}
