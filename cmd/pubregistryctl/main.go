// Command pubregistryctl is a small operator CLI exposing admin-only
// Registry operations — transferring a package's publisher, hard-
// deleting a version, and tombstoning a package — as thin cobra
// wrappers around the same internal/registrycore methods the HTTP API
// calls, never duplicating their business logic.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/quay/zlog"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/pubregistry/registry"
	"github.com/pubregistry/registry/datastore/postgres"
	"github.com/pubregistry/registry/internal/archivestore"
	"github.com/pubregistry/registry/internal/cachelayer"
	"github.com/pubregistry/registry/internal/directory"
	metadatapg "github.com/pubregistry/registry/internal/metadatastore/postgres"
	"github.com/pubregistry/registry/internal/nametracker"
	"github.com/pubregistry/registry/internal/registrycore"
	"github.com/pubregistry/registry/internal/signer"
)

// globalFlags are the connection/identity flags every subcommand needs.
type globalFlags struct {
	connString string
	userID     string
	email      string
	yes        bool
}

func main() {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, NoColor: true}).With().Timestamp().Logger()
	zlog.Set(&log)

	flags := &globalFlags{}
	root := &cobra.Command{
		Use:          "pubregistryctl",
		Short:        "Operator CLI for the pubregistry publishing core",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flags.connString, "conn-string",
		"host=localhost port=5432 user=registry dbname=registry sslmode=disable", "metadata store connection string")
	root.PersistentFlags().StringVar(&flags.userID, "as-user", "", "site-admin user id to act as (required)")
	root.PersistentFlags().StringVar(&flags.email, "as-email", "", "display email for --as-user")
	root.PersistentFlags().BoolVarP(&flags.yes, "yes", "y", false, "skip the confirmation prompt")
	root.MarkPersistentFlagRequired("as-user")

	admin := &cobra.Command{Use: "admin", Short: "Site-admin-only package operations"}
	admin.AddCommand(
		newTransferPublisherCmd(flags),
		newHardDeleteVersionCmd(flags),
		newTombstonePackageCmd(flags),
	)
	root.AddCommand(admin)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newTransferPublisherCmd(flags *globalFlags) *cobra.Command {
	var publisherID string
	c := &cobra.Command{
		Use:   "transfer-publisher PACKAGE",
		Short: "Set a package's publisher",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pkgName := args[0]
			if !confirm(flags, fmt.Sprintf("transfer %q to publisher %q", pkgName, publisherID)) {
				return nil
			}
			return withRegistry(cmd.Context(), flags, func(ctx context.Context, reg *registrycore.Registry, agent registry.Agent) error {
				if err := reg.SetPublisher(ctx, agent, pkgName, publisherID); err != nil {
					return err
				}
				fmt.Printf("%s: publisher set to %q\n", pkgName, publisherID)
				return nil
			})
		},
	}
	c.Flags().StringVar(&publisherID, "publisher", "", "target publisher id (required)")
	c.MarkFlagRequired("publisher")
	return c
}

func newHardDeleteVersionCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "hard-delete-version PACKAGE VERSION",
		Short: "Permanently delete a PackageVersion; the version string can never be republished",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pkgName, version := args[0], args[1]
			if !confirm(flags, fmt.Sprintf("permanently delete %s %s", pkgName, version)) {
				return nil
			}
			return withRegistry(cmd.Context(), flags, func(ctx context.Context, reg *registrycore.Registry, agent registry.Agent) error {
				if err := reg.HardDeleteVersion(ctx, agent, pkgName, version); err != nil {
					return err
				}
				fmt.Printf("%s %s: deleted\n", pkgName, version)
				return nil
			})
		},
	}
}

func newTombstonePackageCmd(flags *globalFlags) *cobra.Command {
	var reason string
	c := &cobra.Command{
		Use:   "tombstone-package PACKAGE",
		Short: "Delete a package and move its name to the moderated-name set",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pkgName := args[0]
			if !confirm(flags, fmt.Sprintf("tombstone %q (reason: %s)", pkgName, reason)) {
				return nil
			}
			return withRegistry(cmd.Context(), flags, func(ctx context.Context, reg *registrycore.Registry, agent registry.Agent) error {
				if err := reg.TombstonePackage(ctx, agent, pkgName, reason); err != nil {
					return err
				}
				fmt.Printf("%s: tombstoned\n", pkgName)
				return nil
			})
		},
	}
	c.Flags().StringVar(&reason, "reason", "", "moderation reason, recorded on the ModeratedName (required)")
	c.MarkFlagRequired("reason")
	return c
}

// confirm prints a y/N prompt unless --yes was passed.
func confirm(flags *globalFlags, action string) bool {
	if flags.yes {
		return true
	}
	fmt.Printf("About to %s. Continue? [y/N] ", action)
	var reply string
	fmt.Scanln(&reply)
	return reply == "y" || reply == "Y"
}

// withRegistry connects to the metadata store, wires the same Registry
// construction cmd/pubregistryd uses, and invokes fn as flags.userID —
// a site admin, per registrycore's authorizeSiteAdmin check.
func withRegistry(ctx context.Context, flags *globalFlags, fn func(context.Context, *registrycore.Registry, registry.Agent) error) error {
	if flags.userID == "" {
		return fmt.Errorf("pubregistryctl: --as-user is required")
	}
	pool, err := postgres.Connect(ctx, flags.connString, "pubregistryctl")
	if err != nil {
		return fmt.Errorf("connecting to metadata store: %w", err)
	}
	defer pool.Close()

	store := metadatapg.New(pool)
	dir := directory.New(pool)
	names := nametracker.New(store)
	if err := names.Refresh(ctx); err != nil {
		return fmt.Errorf("priming name tracker: %w", err)
	}

	cfg := registrycore.DefaultConfig()
	reg := registrycore.New(cfg, store, &archivestore.Memory{}, names,
		&signer.Signer{}, &cachelayer.Local{}, dir, dir)

	agent := registry.AuthenticatedUser{
		UserID:    flags.userID,
		Email:     flags.email,
		SiteAdmin: true,
	}

	return fn(ctx, reg, agent)
}
