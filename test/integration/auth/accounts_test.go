// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quill Contributors

//go:build integration

package auth_test

import (
	"context"
	"sync"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/quillnotes/quill/internal/auth"
)

var _ = Describe("Account lifecycle", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
		resetTables(ctx, env.pool)
	})

	Describe("Registration", func() {
		It("stores an argon2id hash, never the password", func() {
			account, err := env.AccountSvc.Register(ctx, "alice@example.com", "correct horse")
			Expect(err).NotTo(HaveOccurred())

			stored, err := env.Accounts.GetByID(ctx, account.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.PasswordHash).To(HavePrefix("$argon2id$"))
			Expect(stored.PasswordHash).NotTo(ContainSubstring("correct horse"))
		})

		It("elevates only the first account", func() {
			first, err := env.AccountSvc.Register(ctx, "first@example.com", "password one")
			Expect(err).NotTo(HaveOccurred())
			Expect(first.Role).To(Equal(auth.RoleElevated))

			second, err := env.AccountSvc.Register(ctx, "second@example.com", "password two")
			Expect(err).NotTo(HaveOccurred())
			Expect(second.Role).To(Equal(auth.RoleOrdinary))
		})

		It("elevates exactly one of several concurrent first registrations", func() {
			emails := []string{
				"racer1@example.com", "racer2@example.com",
				"racer3@example.com", "racer4@example.com",
			}
			roles := make([]auth.Role, len(emails))

			var wg sync.WaitGroup
			for i, email := range emails {
				wg.Add(1)
				go func() {
					defer wg.Done()
					defer GinkgoRecover()
					account, err := env.AccountSvc.Register(ctx, email, "password "+email)
					Expect(err).NotTo(HaveOccurred())
					roles[i] = account.Role
				}()
			}
			wg.Wait()

			elevated := 0
			for _, role := range roles {
				if role == auth.RoleElevated {
					elevated++
				}
			}
			Expect(elevated).To(Equal(1))
		})

		It("rejects duplicate emails case-insensitively via the unique index", func() {
			_, err := env.AccountSvc.Register(ctx, "alice@example.com", "password one")
			Expect(err).NotTo(HaveOccurred())

			_, err = env.AccountSvc.Register(ctx, "ALICE@example.com", "password two")
			Expect(err).To(MatchError(auth.ErrConflict))
		})
	})

	Describe("Login", func() {
		BeforeEach(func() {
			_, err := env.AccountSvc.Register(ctx, "alice@example.com", "correct horse")
			Expect(err).NotTo(HaveOccurred())
		})

		It("issues a bearer token that validates", func() {
			token, account, err := env.AccountSvc.Login(ctx, "alice@example.com", "correct horse")
			Expect(err).NotTo(HaveOccurred())

			principal, err := env.Bearer.Validate(token)
			Expect(err).NotTo(HaveOccurred())
			Expect(principal.Subject).To(Equal(account.ID))
			Expect(principal.Label).To(Equal("alice@example.com"))
		})

		It("rejects a wrong password and persists the failure count", func() {
			_, _, err := env.AccountSvc.Login(ctx, "alice@example.com", "wrong")
			Expect(err).To(MatchError(auth.ErrInvalidCredential))

			stored, err := env.Accounts.GetByEmail(ctx, "alice@example.com")
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.FailedAttempts).To(Equal(1))
		})

		It("clears the failure count on success", func() {
			_, _, err := env.AccountSvc.Login(ctx, "alice@example.com", "wrong")
			Expect(err).To(HaveOccurred())

			_, _, err = env.AccountSvc.Login(ctx, "alice@example.com", "correct horse")
			Expect(err).NotTo(HaveOccurred())

			stored, err := env.Accounts.GetByEmail(ctx, "alice@example.com")
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.FailedAttempts).To(BeZero())
		})
	})

	Describe("Email verification", func() {
		It("flips email_verified exactly once per token", func() {
			account, err := env.AccountSvc.Register(ctx, "alice@example.com", "correct horse")
			Expect(err).NotTo(HaveOccurred())
			Expect(account.EmailVerified).To(BeFalse())

			token, _, err := env.AccountSvc.RequestVerification(ctx, account.ID)
			Expect(err).NotTo(HaveOccurred())

			verified, err := env.AccountSvc.VerifyEmail(ctx, token)
			Expect(err).NotTo(HaveOccurred())
			Expect(verified).To(Equal(account.ID))

			stored, err := env.Accounts.GetByID(ctx, account.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.EmailVerified).To(BeTrue())
			Expect(stored.VerifyTokenHash).To(BeNil())

			_, err = env.AccountSvc.VerifyEmail(ctx, token)
			Expect(err).To(MatchError(auth.ErrNotFound))
		})

		It("admits exactly one winner under concurrent claims", func() {
			account, err := env.AccountSvc.Register(ctx, "alice@example.com", "correct horse")
			Expect(err).NotTo(HaveOccurred())

			token, _, err := env.AccountSvc.RequestVerification(ctx, account.ID)
			Expect(err).NotTo(HaveOccurred())

			const claimers = 8
			var wg sync.WaitGroup
			results := make(chan error, claimers)
			for range claimers {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, claimErr := env.AccountSvc.VerifyEmail(ctx, token)
					results <- claimErr
				}()
			}
			wg.Wait()
			close(results)

			var wins int
			for claimErr := range results {
				if claimErr == nil {
					wins++
				}
			}
			Expect(wins).To(Equal(1))
		})
	})

	Describe("Password reset", func() {
		BeforeEach(func() {
			_, err := env.AccountSvc.Register(ctx, "alice@example.com", "old password")
			Expect(err).NotTo(HaveOccurred())
		})

		It("changes the password end to end", func() {
			token, _, err := env.AccountSvc.RequestReset(ctx, "alice@example.com")
			Expect(err).NotTo(HaveOccurred())
			Expect(token).NotTo(BeEmpty())

			Expect(env.AccountSvc.ResetPassword(ctx, token, "new password")).To(Succeed())

			_, _, err = env.AccountSvc.Login(ctx, "alice@example.com", "old password")
			Expect(err).To(MatchError(auth.ErrInvalidCredential))

			_, _, err = env.AccountSvc.Login(ctx, "alice@example.com", "new password")
			Expect(err).NotTo(HaveOccurred())
		})

		It("returns no token for unknown emails", func() {
			token, _, err := env.AccountSvc.RequestReset(ctx, "nobody@example.com")
			Expect(err).NotTo(HaveOccurred())
			Expect(token).To(BeEmpty())
		})

		It("supersedes earlier reset tokens on reissue", func() {
			first, _, err := env.AccountSvc.RequestReset(ctx, "alice@example.com")
			Expect(err).NotTo(HaveOccurred())

			second, _, err := env.AccountSvc.RequestReset(ctx, "alice@example.com")
			Expect(err).NotTo(HaveOccurred())

			Expect(env.AccountSvc.ResetPassword(ctx, first, "new password")).
				To(MatchError(auth.ErrInvalidCredential))
			Expect(env.AccountSvc.ResetPassword(ctx, second, "new password")).To(Succeed())
		})
	})
})
