package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/voyagehub/tour-booking-backend/internal/utils"
	"github.com/voyagehub/tour-booking-backend/pkg/jwt"
)

func main() {
	newSecret := flag.Bool("new-secret", false, "print a fresh JWT_SECRET and exit")
	service := flag.String("service", "", "mint a service token for this caller name instead of a user token")
	userID := flag.String("user", "", "user id (random when empty)")
	email := flag.String("email", "", "email claim")
	roles := flag.String("roles", "operator", "comma separated roles")
	expiry := flag.Duration("expiry", time.Hour, "token lifetime")
	flag.Parse()

	if *newSecret {
		secret, err := utils.GenerateSecret(32)
		if err != nil {
			log.Fatalf("Failed to generate secret: %v", err)
		}
		fmt.Printf("JWT_SECRET=%s\n", secret)
		return
	}

	_ = godotenv.Load()
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		log.Fatal("JWT_SECRET is not set (run with -new-secret to create one)")
	}

	jwtService := jwt.NewService(secret, *expiry, *expiry)

	if *service != "" {
		token, err := jwtService.GenerateServiceToken(*service)
		if err != nil {
			log.Fatalf("Failed to generate service token: %v", err)
		}
		fmt.Println(token)
		return
	}

	id := uuid.New()
	if *userID != "" {
		parsed, err := uuid.Parse(*userID)
		if err != nil {
			log.Fatalf("Invalid user id: %v", err)
		}
		id = parsed
	}

	var roleList []string
	for _, r := range strings.Split(*roles, ",") {
		if r = strings.TrimSpace(r); r != "" {
			roleList = append(roleList, r)
		}
	}

	token, err := jwtService.GenerateAccessToken(id, *email, roleList)
	if err != nil {
		log.Fatalf("Failed to generate access token: %v", err)
	}

	fmt.Fprintf(os.Stderr, "user_id=%s roles=%s expires_in=%s\n", id, strings.Join(roleList, ","), expiry.String())
	fmt.Println(token)
}
