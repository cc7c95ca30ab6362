package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/smartaccess-backend/internal/authz"
	"github.com/angelmondragon/smartaccess-backend/internal/doors"
	"github.com/angelmondragon/smartaccess-backend/internal/identities"
	"github.com/angelmondragon/smartaccess-backend/internal/locks"
	"github.com/angelmondragon/smartaccess-backend/internal/profiles"
	"github.com/angelmondragon/smartaccess-backend/internal/provisioning"
	"github.com/angelmondragon/smartaccess-backend/internal/reports"
	"github.com/angelmondragon/smartaccess-backend/internal/seed"
	"github.com/angelmondragon/smartaccess-backend/pkg/config"
	"github.com/angelmondragon/smartaccess-backend/pkg/db"
	"github.com/angelmondragon/smartaccess-backend/pkg/logger"
	"github.com/angelmondragon/smartaccess-backend/pkg/migrate"
	"github.com/angelmondragon/smartaccess-backend/pkg/outbox"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "seed"})

	_ = godotenv.Load()

	fixturesPath := flag.String("fixtures", "", "TOML fixtures file (defaults to SMARTACCESS_SEED_FIXTURES or the built-in demo campus)")
	cleanup := flag.Bool("cleanup", false, "delete all doors, locks and non-superuser identities")
	confirm := flag.Bool("confirm", false, "required with -cleanup")
	flag.Parse()

	if *cleanup && !*confirm {
		fmt.Println("WARNING: -cleanup deletes every door, lock and non-superuser identity.")
		fmt.Println("Re-run with: seed -cleanup -confirm")
		return
	}

	cfg, err := config.Load()
	requireResource(context.Background(), logg, "config", err)

	logg = logger.New(logger.Options{
		ServiceName: "seed",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx := logg.WithField(context.Background(), "env", cfg.App.Env)

	dbClient, err := db.New(ctx, cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer dbClient.Close()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		fail("dev migrations failed: %v", err)
	}

	seeder, err := buildSeeder(cfg, logg, dbClient)
	requireResource(ctx, logg, "seeder", err)

	if *cleanup {
		res, err := seeder.Cleanup(ctx)
		if err != nil {
			fail("cleanup failed: %v", err)
		}
		printCounts("before", res.Before)
		fmt.Printf("deleted: doors=%d identities=%d\n", res.DoorsDeleted, res.IdentitiesDeleted)
		printCounts("after", res.After)
		return
	}

	fixtures, err := loadFixtures(*fixturesPath, cfg.Seed.FixturesPath)
	if err != nil {
		fail("%v", err)
	}
	res, err := seeder.Load(ctx, fixtures)
	if err != nil {
		fail("seed failed: %v", err)
	}
	fmt.Printf("identities: created=%d skipped=%d\n", res.IdentitiesCreated, res.IdentitiesSkipped)
	fmt.Printf("doors:      created=%d skipped=%d locks_engaged=%d\n", res.DoorsCreated, res.DoorsSkipped, res.LocksEngaged)
}

func loadFixtures(flagPath, envPath string) (seed.Fixtures, error) {
	path := flagPath
	if path == "" {
		path = envPath
	}
	if path == "" {
		return seed.Default()
	}
	return seed.LoadFile(path)
}

func buildSeeder(cfg *config.Config, logg *logger.Logger, client *db.Client) (*seed.Seeder, error) {
	conn := client.DB()
	engine := authz.NewEngine(nil, logg)
	emitter := outbox.NewService(outbox.NewRepository(conn), logg)
	profileRepo := profiles.NewRepository(conn)
	identityRepo := identities.NewRepository(conn)
	doorRepo := doors.NewRepository(conn)

	rule, err := provisioning.New(provisioning.Params{Profiles: profileRepo, Outbox: emitter, Logger: logg})
	if err != nil {
		return nil, err
	}
	users, err := identities.NewService(identities.ServiceParams{
		Repo:        identityRepo,
		Profiles:    profileRepo,
		Provisioner: rule,
		Tx:          client,
		Authz:       engine,
		Outbox:      emitter,
		Password:    cfg.Password,
		Logger:      logg,
	})
	if err != nil {
		return nil, err
	}
	doorSvc, err := doors.NewService(doors.ServiceParams{Repo: doorRepo, Tx: client, Authz: engine, Outbox: emitter})
	if err != nil {
		return nil, err
	}
	lockSvc, err := locks.NewService(locks.ServiceParams{Repo: locks.NewRepository(conn), Tx: client, Authz: engine, Outbox: emitter})
	if err != nil {
		return nil, err
	}
	reportSvc, err := reports.NewService(reports.NewRepository(conn), engine, nil)
	if err != nil {
		return nil, err
	}
	return seed.New(seed.Params{
		Identities:     users,
		IdentityLookup: identityRepo,
		Doors:          doorSvc,
		DoorLookup:     doorRepo,
		Locks:          lockSvc,
		Reports:        reportSvc,
		Logger:         logg,
	})
}

func printCounts(label string, s reports.Summary) {
	fmt.Printf("%s: identities=%d profiles=%d doors=%d locks=%d\n",
		label, s.Identities.Total, s.Profiles.Total, s.Doors.Total, s.Locks.Total)
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
