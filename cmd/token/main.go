// Command token mints an admin bearer token signed with ADMIN_JWT_SECRET.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"portfolio-backend/internal/shared/auth"
	"portfolio-backend/internal/shared/config"
)

func main() {
	cfg := config.Load()
	admin := flag.String("admin", "owner", "Admin id to place in the token subject")
	ttl := flag.Duration("ttl", 24*time.Hour, "Token lifetime")
	flag.Parse()

	signer, err := auth.NewSigner(cfg.AdminJWTSecret, *ttl, nil)
	if err != nil {
		exitErr(err.Error())
	}
	token, err := signer.Sign(*admin)
	if err != nil {
		exitErr(err.Error())
	}
	fmt.Println(token)
}

func exitErr(msg string) {
	_, _ = fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}
