package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"github.com/realisereallies/anime/internal/maintenance"
	"github.com/realisereallies/anime/internal/stats"
	"github.com/realisereallies/anime/pkg/database"
	"github.com/realisereallies/anime/pkg/logger"
	"github.com/realisereallies/anime/pkg/utils"
)

func main() {
	if err := utils.LoadEnvFile(); err != nil {
		log.Fatal().Err(err).Msg("env file")
	}
	logger.Init("reviewctl", true)

	global := flag.NewFlagSet("reviewctl", flag.ExitOnError)
	dbPath := global.String("db", utils.DefaultDBPath(), "sqlite database path")
	_ = global.Parse(os.Args[1:])

	args := global.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	cfg := database.Config{Path: *dbPath}
	db, err := database.Open(cfg)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.Path).Msg("db open failed")
	}
	defer db.Close()
	if err := database.Migrate(db); err != nil {
		log.Fatal().Err(err).Msg("db migrate failed")
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "migrate":
		log.Info().Str("path", cfg.Path).Msg("schema is up to date")

	case "seed":
		fs := flag.NewFlagSet("seed", flag.ExitOnError)
		file := fs.String("file", "", "CSV to import (default: built-in sample)")
		_ = fs.Parse(rest)

		var in io.Reader = strings.NewReader(maintenance.SampleReviews)
		if *file != "" {
			f, err := os.Open(*file)
			if err != nil {
				log.Fatal().Err(err).Msg("open seed file")
			}
			defer f.Close()
			in = f
		}
		res, err := maintenance.ImportReviews(ctx, db, in, bcrypt.DefaultCost)
		if err != nil {
			log.Fatal().Err(err).Msg("seed failed")
		}
		log.Info().
			Int("users_created", res.UsersCreated).
			Int("reviews_created", res.ReviewsCreated).
			Int("skipped", res.Skipped).
			Msg("seed complete")

	case "export":
		fs := flag.NewFlagSet("export", flag.ExitOnError)
		out := fs.String("out", "data/reviews.csv", "output CSV path, - for stdout")
		_ = fs.Parse(rest)

		var w io.Writer = os.Stdout
		if *out != "-" {
			if err := os.MkdirAll(filepath.Dir(*out), 0o755); err != nil {
				log.Fatal().Err(err).Msg("create output dir")
			}
			f, err := os.Create(*out)
			if err != nil {
				log.Fatal().Err(err).Msg("create output file")
			}
			defer f.Close()
			w = f
		}
		n, err := maintenance.ExportReviews(ctx, db, w)
		if err != nil {
			log.Fatal().Err(err).Msg("export failed")
		}
		log.Info().Int("reviews", n).Str("out", *out).Msg("export complete")

	case "stats":
		s, err := stats.NewRepo(db).Stats(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("stats failed")
		}
		b, _ := json.MarshalIndent(s, "", "  ")
		fmt.Println(string(b))

	case "set-password":
		fs := flag.NewFlagSet("set-password", flag.ExitOnError)
		email := fs.String("email", "", "user email")
		password := fs.String("password", "", "new password")
		_ = fs.Parse(rest)

		if *email == "" || *password == "" {
			log.Fatal().Msg("email and password are required")
		}
		if err := maintenance.SetPassword(ctx, db, *email, *password, bcrypt.DefaultCost); err != nil {
			log.Fatal().Err(err).Msg("set password failed")
		}
		log.Info().Str("email", *email).Msg("password updated, existing tokens revoked")

	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `usage: reviewctl [-db path] <command> [flags]

commands:
  migrate                              apply the schema
  seed [-file reviews.csv]             import reviews (built-in sample by default)
  export [-out data/reviews.csv]       write every review as CSV
  stats                                print site counters
  set-password -email E -password P    reset a password and revoke tokens`)
}
