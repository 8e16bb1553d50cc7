// README: Applies the SQL files in migrations/ against RIDE_DB_DSN.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/golang-migrate/migrate/v4"

	"ridebook/internal/config"
	"ridebook/internal/infra"
)

func main() {
	config.LoadDotEnvUp(8)

	var (
		direction = flag.String("direction", "up", "up|down")
		steps     = flag.Int("steps", 0, "number of steps (0 = all)")
		dir       = flag.String("path", "migrations", "migrations directory")
	)
	flag.Parse()

	dsn := os.Getenv("RIDE_DB_DSN")
	if dsn == "" {
		fmt.Fprintln(os.Stderr, "RIDE_DB_DSN is required")
		os.Exit(2)
	}

	m, err := infra.NewMigrator(*dir, dsn)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer m.Close()

	switch *direction {
	case "up":
		if *steps > 0 {
			err = m.Steps(*steps)
		} else {
			err = m.Up()
		}
	case "down":
		if *steps > 0 {
			err = m.Steps(-*steps)
		} else {
			err = m.Down()
		}
	default:
		fmt.Fprintln(os.Stderr, "invalid -direction, must be up|down")
		os.Exit(2)
	}

	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		fmt.Fprintln(os.Stderr, "migration error:", err)
		os.Exit(1)
	}
	fmt.Println("migrations:", *direction, "ok")
}
