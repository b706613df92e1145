// Command mktoken mints a bearer token for the game server or an operator.
package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/example/market-engine/internal/auth"
)

type tokenEnv struct {
	Secret string `env:"JWT_SECRET,required,notEmpty"`
}

func main() {
	player := flag.String("player", "", "player id the token acts for")
	role := flag.String("role", auth.RolePlayer, "player or admin")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	if *player == "" {
		log.Fatal("-player is required")
	}
	if *role != auth.RolePlayer && *role != auth.RoleAdmin {
		log.Fatalf("unknown role %q", *role)
	}

	var cfg tokenEnv
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("parse env: %v", err)
	}

	token, expiresAt, err := auth.NewJWTService(cfg.Secret, *ttl).IssueToken(*player, *role)
	if err != nil {
		log.Fatalf("issue token: %v", err)
	}
	fmt.Println(token)
	log.Printf("expires %s", expiresAt.Format(time.RFC3339))
}
