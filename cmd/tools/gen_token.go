// Command gen_token signs a JWT for local testing. The server never issues
// tokens; this stands in for the external identity provider during
// development.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"chat-sync/auth"
	"chat-sync/domain/chat"
)

func main() {
	_ = godotenv.Load()
	secret := flag.String("secret", os.Getenv("JWT_SECRET"), "HMAC secret shared with the server")
	userID := flag.String("user", "", "user id to embed in the token")
	username := flag.String("name", "", "username to embed in the token")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	if *secret == "" || *userID == "" || *username == "" {
		fmt.Fprintln(os.Stderr, "usage: gen_token -user <id> -name <username> [-secret <secret>] [-ttl <duration>]")
		os.Exit(2)
	}

	token, err := auth.GenerateToken(*secret, chat.Identity{UserID: *userID, Username: *username}, *ttl)
	if err != nil {
		log.Fatal("Signing token failed: ", err)
	}
	fmt.Println(token)
}
