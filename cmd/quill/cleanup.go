// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quill Contributors

package main

import (
	"time"

	"github.com/spf13/cobra"

	authpg "github.com/quillnotes/quill/internal/auth/postgres"
)

// NewCleanupCmd creates the cleanup subcommand.
func NewCleanupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Remove expired verification and reset tokens",
		Long: `Clear token hashes whose expiry has passed. Expired tokens can
never be consumed, so this is hygiene rather than a security measure;
run it from cron or a scheduled job.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			pool, err := connectPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			cleared, err := authpg.NewAccountRepository(pool).ClearExpiredTokens(ctx, time.Now())
			if err != nil {
				return err
			}

			cmd.Printf("Cleared %d expired token(s)\n", cleared)
			return nil
		},
	}
}
