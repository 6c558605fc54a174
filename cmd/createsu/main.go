// Command createsu creates a verified superuser, or promotes an existing
// account, so the first staff member can log in.
//
//	createsu <utorid> <email> <password>
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/example/campuspoints/internal/config"
	"github.com/example/campuspoints/internal/database"
	"github.com/example/campuspoints/internal/services"
)

func main() {
	if len(os.Args) != 4 {
		fmt.Fprintln(os.Stderr, "usage: createsu <utorid> <email> <password>")
		os.Exit(2)
	}

	dbCfg := config.LoadDatabase()
	db := database.Connect(dbCfg.DSN())

	users := services.NewUserService(db)
	user, err := users.CreateSuperuser(context.Background(), os.Args[1], os.Args[2], os.Args[3])
	if err != nil {
		log.Fatalf("create superuser: %v", err)
	}
	log.Printf("superuser %s ready (id %d)", user.Utorid, user.ID)
}
