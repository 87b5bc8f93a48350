// Command createadmin creates an admin account. Registration through the site
// only ever creates users with the "user" role.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/01moynul/storefront-golang/internal/config"
	"github.com/01moynul/storefront-golang/internal/database"
)

func main() {
	username := flag.String("username", "", "admin username")
	email := flag.String("email", "", "admin email")
	password := flag.String("password", "", "admin password")
	flag.Parse()

	if *username == "" || *email == "" || *password == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := database.OpenDB(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := database.Migrate(ctx, db); err != nil {
		log.Fatalf("Failed to apply schema: %v", err)
	}

	id, err := database.CreateAdmin(ctx, db, *username, *email, *password)
	if err != nil {
		if database.IsDuplicateEntry(err) {
			log.Fatalf("Username or email already exists")
		}
		log.Fatalf("Failed to create admin: %v", err)
	}
	fmt.Printf("Created admin %q (id %d)\n", *username, id)
}
