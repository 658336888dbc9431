// Command devtoken prints a bearer token for a user id, signed with the
// server's configured secret. It is meant for local development only.
//
//	devtoken -user alice -ttl 2h [-c config.json] [-s secret]
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/dmitrijs2005/lmsstorage/internal/flagx"
	"github.com/dmitrijs2005/lmsstorage/internal/server/auth"
	"github.com/dmitrijs2005/lmsstorage/internal/server/config"
)

func main() {

	fs := flag.NewFlagSet("devtoken", flag.ExitOnError)
	userID := fs.String("user", "", "user id to embed in the token")
	ttl := fs.Duration("ttl", time.Hour, "token lifetime")
	_ = fs.Parse(flagx.FilterArgs(os.Args[1:], []string{"-user", "-ttl"}))

	if *userID == "" {
		log.Fatal("-user is required")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("%v", err)
	}

	token, err := auth.GenerateToken(*userID, []byte(cfg.SecretKey), *ttl)
	if err != nil {
		log.Fatalf("generate token: %v", err)
	}

	fmt.Println(token)
}
