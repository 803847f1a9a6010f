// Command pocketbase runs an embedded PocketBase server holding the employee directory.
//
//	go run ./scripts/pocketbase serve --http=0.0.0.0:8090
//	go run ./scripts/pocketbase migrate up
package main

import (
	"log"

	"github.com/joho/godotenv"
	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/plugins/migratecmd"

	_ "face-attendance/migrations"
)

func main() {
	_ = godotenv.Load()

	app := pocketbase.New()

	migratecmd.MustRegister(app, app.RootCmd, migratecmd.Config{
		Dir:         "migrations",
		Automigrate: false,
	})

	if err := app.Start(); err != nil {
		log.Fatal(err)
	}
}
