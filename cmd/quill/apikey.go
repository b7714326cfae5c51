// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quill Contributors

package main

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/quillnotes/quill/internal/auth"
	authpg "github.com/quillnotes/quill/internal/auth/postgres"
	"github.com/quillnotes/quill/internal/store"
)

// NewAPIKeyCmd creates the apikey subcommand tree.
func NewAPIKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apikey",
		Short: "Manage API keys",
		Long:  `Create, list, and revoke API keys directly against the database.`,
	}

	cmd.AddCommand(newAPIKeyCreateCmd())
	cmd.AddCommand(newAPIKeyListCmd())
	cmd.AddCommand(newAPIKeyRevokeCmd())

	return cmd
}

func newAPIKeyCreateCmd() *cobra.Command {
	var (
		name      string
		elevated  bool
		createdBy string
		expiresIn time.Duration
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new API key",
		Long: `Create a new API key. The full key is printed exactly once;
only its hash is stored.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			creator, err := ulid.Parse(createdBy)
			if err != nil {
				return oops.Code("CONFIG_INVALID").With("created_by", createdBy).Wrap(err)
			}

			var expiresAt *time.Time
			if expiresIn > 0 {
				t := time.Now().Add(expiresIn)
				expiresAt = &t
			}

			return withKeyService(cmd.Context(), func(ctx context.Context, svc *auth.APIKeyService) error {
				plaintext, key, err := svc.Generate(ctx, name, elevated, creator, expiresAt)
				if err != nil {
					return err
				}

				cmd.Printf("id:       %s\n", key.ID)
				cmd.Printf("name:     %s\n", key.Name)
				cmd.Printf("prefix:   %s\n", key.KeyPrefix)
				cmd.Printf("elevated: %t\n", key.Elevated)
				if key.ExpiresAt != nil {
					cmd.Printf("expires:  %s\n", key.ExpiresAt.Format(time.RFC3339))
				}
				cmd.Println()
				cmd.Println("API key (shown once, store it now):")
				cmd.Println(plaintext)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "key name (required)")
	cmd.Flags().BoolVar(&elevated, "elevated", false, "grant the elevated role")
	cmd.Flags().StringVar(&createdBy, "created-by", "", "account ULID the key belongs to (required)")
	cmd.Flags().DurationVar(&expiresIn, "expires-in", 0, "lifetime, e.g. 720h (0 = never expires)")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("created-by")

	return cmd
}

func newAPIKeyListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withKeyService(cmd.Context(), func(ctx context.Context, svc *auth.APIKeyService) error {
				keys, err := svc.List(ctx)
				if err != nil {
					return err
				}

				for _, key := range keys {
					status := "active"
					if !key.Active {
						status = "revoked"
					} else if key.IsExpired(time.Now()) {
						status = "expired"
					}
					expires := "never"
					if key.ExpiresAt != nil {
						expires = key.ExpiresAt.Format(time.RFC3339)
					}
					cmd.Printf("%s  %s  %-8s elevated=%-5t expires=%s  %s\n",
						key.ID, key.KeyPrefix, status, key.Elevated, expires, key.Name)
				}
				cmd.Printf("%d key(s)\n", len(keys))
				return nil
			})
		},
	}
}

func newAPIKeyRevokeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := ulid.Parse(args[0])
			if err != nil {
				return oops.Code("CONFIG_INVALID").With("id", args[0]).Wrap(err)
			}

			return withKeyService(cmd.Context(), func(ctx context.Context, svc *auth.APIKeyService) error {
				if err := svc.Revoke(ctx, id); err != nil {
					return err
				}
				cmd.Println("Key revoked")
				return nil
			})
		},
	}
}

// withKeyService connects to the database and hands an APIKeyService to fn.
func withKeyService(ctx context.Context, fn func(context.Context, *auth.APIKeyService) error) error {
	pool, err := connectPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	svc := auth.NewAPIKeyService(authpg.NewAPIKeyRepository(pool), auth.NewArgon2idHasher())
	return fn(ctx, svc)
}

func connectPool(ctx context.Context) (*pgxpool.Pool, error) {
	databaseURL, err := resolveDatabaseURL()
	if err != nil {
		return nil, err
	}
	return store.Connect(ctx, databaseURL)
}
