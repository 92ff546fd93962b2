// Command pubregistryd is the HTTP server entrypoint for the publishing
// pipeline and registry API core: parse Config, connect the postgres
// pool, optionally run migrations, wire every collaborator, and serve.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/crgimenes/goconfig"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/quay/zlog"
	"github.com/remind101/migrate"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/pubregistry/registry/datastore/postgres"
	"github.com/pubregistry/registry/datastore/postgres/migrations"
	"github.com/pubregistry/registry/internal/api"
	"github.com/pubregistry/registry/internal/archivestore"
	"github.com/pubregistry/registry/internal/auth"
	"github.com/pubregistry/registry/internal/cachelayer"
	"github.com/pubregistry/registry/internal/directory"
	metadatapg "github.com/pubregistry/registry/internal/metadatastore/postgres"
	"github.com/pubregistry/registry/internal/nametracker"
	"github.com/pubregistry/registry/internal/outbox"
	"github.com/pubregistry/registry/internal/registrycore"
	"github.com/pubregistry/registry/internal/retry"
	"github.com/pubregistry/registry/internal/signer"
	"github.com/pubregistry/registry/locksource"
	"github.com/pubregistry/registry/locksource/pglock"
)

// Config is parsed by goconfig from flags and environment variables.
type Config struct {
	HTTPListenAddr string `cfgDefault:"0.0.0.0:8080" cfg:"HTTP_LISTEN_ADDR"`
	ConnString     string `cfgDefault:"host=localhost port=5432 user=registry dbname=registry sslmode=disable" cfg:"CONNECTION_STRING" cfgHelper:"Connection string for the metadata store"`
	RedisAddr      string `cfgDefault:"" cfg:"REDIS_ADDR" cfgHelper:"go-redis address for CacheLayer; empty uses an in-process fallback"`
	RunMigrations  bool   `cfgDefault:"true" cfg:"RUN_MIGRATIONS"`

	UploadURL             string `cfgDefault:"https://storage.example.com/incoming" cfg:"UPLOAD_URL"`
	UploadSigningSecret   string `cfgDefault:"dev-upload-secret" cfg:"UPLOAD_SIGNING_SECRET"`
	MaxArchiveSize        int64  `cfgDefault:"104857600" cfg:"MAX_ARCHIVE_SIZE" cfgHelper:"Maximum accepted archive size, in bytes"`
	MaxVersionsPerPackage int    `cfgDefault:"1000" cfg:"MAX_VERSIONS_PER_PACKAGE"`
	RetractionWindowDays  int    `cfgDefault:"7" cfg:"RETRACTION_WINDOW_DAYS"`
	UnretractWindowDays   int    `cfgDefault:"14" cfg:"UNRETRACT_WINDOW_DAYS"`
	UploadsEnabled        bool   `cfgDefault:"true" cfg:"UPLOADS_ENABLED"`
	VendorReservedPrefix  string `cfgDefault:"pubregistry_" cfg:"VENDOR_RESERVED_PREFIX"`

	UserTokenSecret    string `cfgDefault:"dev-user-token-secret" cfg:"USER_TOKEN_SECRET"`
	SiteAdmins         string `cfgDefault:"" cfg:"SITE_ADMINS" cfgHelper:"Comma-separated user ids with managePackageOwnership"`
	OutboxSweepSeconds int    `cfgDefault:"5" cfg:"OUTBOX_SWEEP_SECONDS"`
	NameScanMinutes    int    `cfgDefault:"5" cfg:"NAME_SCAN_MINUTES"`

	LogLevel string `cfgDefault:"debug" cfg:"LOG_LEVEL" cfgHelper:"Log levels: debug, info, warning, error, fatal, panic"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, NoColor: true}).
		With().Timestamp().Caller().Logger()

	conf := Config{}
	if err := goconfig.Parse(&conf); err != nil {
		log.Fatal().Msgf("failed to parse config: %v", err)
	}
	log = log.Level(logLevel(conf))
	zlog.Set(&log)

	pool, err := postgres.Connect(ctx, conf.ConnString, "pubregistryd")
	if err != nil {
		log.Fatal().Msgf("failed to create db pool: %v", err)
	}
	defer pool.Close()

	if conf.RunMigrations {
		if err := runMigrations(ctx, conf.ConnString); err != nil {
			log.Fatal().Msgf("failed to run migrations: %v", err)
		}
	}

	store := metadatapg.New(pool)
	dir := directory.New(pool)

	lock, err := pglock.New(ctx, pool.Config())
	if err != nil {
		log.Fatal().Msgf("failed to create advisory-lock pool: %v", err)
	}
	defer lock.Close()
	var contextLock locksource.ContextLock = lock

	names := nametracker.New(store)
	if err := names.Refresh(ctx); err != nil {
		log.Fatal().Msgf("failed to prime name tracker: %v", err)
	}

	var cache cachelayer.Cache = &cachelayer.Local{}
	if rc := cachelayer.Dial(conf.RedisAddr); rc != nil {
		cache = cachelayer.NewRedis(rc)
	}

	sign := &signer.Signer{
		UploadURL: conf.UploadURL,
		Secret:    []byte(conf.UploadSigningSecret),
		MaxSize:   conf.MaxArchiveSize,
		Expiry:    10 * time.Minute,
	}

	archives := &archivestore.Memory{}

	cfg := registrycore.DefaultConfig()
	cfg.MaxArchiveSize = conf.MaxArchiveSize
	cfg.MaxVersionsPerPackage = conf.MaxVersionsPerPackage
	cfg.RetractionWindow = time.Duration(conf.RetractionWindowDays) * 24 * time.Hour
	cfg.UnretractionWindow = time.Duration(conf.UnretractWindowDays) * 24 * time.Hour
	cfg.UploadsEnabled = conf.UploadsEnabled
	if conf.VendorReservedPrefix != "" {
		cfg.VendorReservedPrefixes = []string{conf.VendorReservedPrefix}
	}

	reg := registrycore.New(cfg, store, archives, names, sign, cache, dir, dir)

	verifier := &auth.Verifier{
		UserKey:    []byte(conf.UserTokenSecret),
		SiteAdmins: siteAdmins(conf.SiteAdmins),
	}

	handler := api.New(reg, verifier)

	srv := &http.Server{
		Addr:        conf.HTTPListenAddr,
		Handler:     handler,
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	sweeper := &outbox.Sweeper{
		Store:  store,
		Mailer: outbox.LogMailer{},
		Jobs:   outbox.LogJobSubmitter{},
		Lock:   contextLock,
		Policy: retry.Default,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		zlog.Info(gctx).Str("addr", conf.HTTPListenAddr).Msg("starting http server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		sweeper.Run(gctx, time.Duration(conf.OutboxSweepSeconds)*time.Second)
		return nil
	})
	g.Go(func() error {
		names.RunBackgroundScan(gctx, time.Duration(conf.NameScanMinutes)*time.Minute)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatal().Msgf("pubregistryd: %v", err)
	}
}

// runMigrations applies every registry migration through database/sql;
// remind101/migrate speaks *sql.DB, not a pgxpool.Pool.
func runMigrations(ctx context.Context, connString string) error {
	cfg, err := pgx.ParseConfig(connString)
	if err != nil {
		return fmt.Errorf("parsing connection string: %w", err)
	}
	db := stdlib.OpenDB(*cfg)
	defer db.Close()

	migrator := migrate.NewPostgresMigrator(db)
	migrator.Table = migrations.MigrationTable
	return migrator.Exec(migrate.Up, migrations.Migrations...)
}

func logLevel(conf Config) zerolog.Level {
	if l, err := zerolog.ParseLevel(strings.ToLower(conf.LogLevel)); err == nil {
		return l
	}
	return zerolog.InfoLevel
}

func siteAdmins(csv string) map[string]bool {
	out := map[string]bool{}
	for _, id := range strings.Split(csv, ",") {
		id = strings.TrimSpace(id)
		if id != "" {
			out[id] = true
		}
	}
	return out
}
