// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quill Contributors

//go:build integration

package auth_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/oklog/ulid/v2"

	"github.com/quillnotes/quill/internal/auth"
)

var _ = Describe("API key lifecycle", func() {
	var (
		ctx   context.Context
		owner ulid.ULID
	)

	BeforeEach(func() {
		ctx = context.Background()
		resetTables(ctx, env.pool)

		account, err := env.AccountSvc.Register(ctx, "admin@example.com", "correct horse")
		Expect(err).NotTo(HaveOccurred())
		owner = account.ID
	})

	It("stores only a hash and the lookup prefix", func() {
		plaintext, key, err := env.KeySvc.Generate(ctx, "ci", false, owner, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(plaintext).To(HavePrefix("quill_"))

		stored, err := env.Keys.GetByID(ctx, key.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(stored.KeyHash).NotTo(ContainSubstring(plaintext))
		Expect(stored.KeyPrefix).To(Equal(plaintext[:12]))
	})

	It("validates a generated key back to its principal", func() {
		plaintext, key, err := env.KeySvc.Generate(ctx, "ci", true, owner, nil)
		Expect(err).NotTo(HaveOccurred())

		principal, err := env.KeySvc.Validate(ctx, plaintext)
		Expect(err).NotTo(HaveOccurred())
		Expect(principal).NotTo(BeNil())
		Expect(principal.Subject).To(Equal(owner))
		Expect(principal.Role).To(Equal(auth.RoleElevated))
		Expect(principal.Method).To(Equal(auth.MethodAPIKey))
		Expect(*principal.KeyID).To(Equal(key.ID))
	})

	It("stops validating after revocation", func() {
		plaintext, key, err := env.KeySvc.Generate(ctx, "ci", false, owner, nil)
		Expect(err).NotTo(HaveOccurred())

		Expect(env.KeySvc.Revoke(ctx, key.ID)).To(Succeed())

		principal, err := env.KeySvc.Validate(ctx, plaintext)
		Expect(err).NotTo(HaveOccurred())
		Expect(principal).To(BeNil())

		stored, err := env.Keys.GetByID(ctx, key.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(stored.Active).To(BeFalse(), "the record survives revocation")
	})

	It("rejects expired keys", func() {
		past := time.Now().Add(-time.Minute)
		plaintext, _, err := env.KeySvc.Generate(ctx, "stale", false, owner, &past)
		Expect(err).NotTo(HaveOccurred())

		principal, err := env.KeySvc.Validate(ctx, plaintext)
		Expect(err).NotTo(HaveOccurred())
		Expect(principal).To(BeNil())
	})

	It("lists active and revoked keys without plaintext", func() {
		_, kept, err := env.KeySvc.Generate(ctx, "kept", false, owner, nil)
		Expect(err).NotTo(HaveOccurred())
		_, revoked, err := env.KeySvc.Generate(ctx, "revoked", false, owner, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(env.KeySvc.Revoke(ctx, revoked.ID)).To(Succeed())

		keys, err := env.KeySvc.List(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(keys).To(HaveLen(2))

		byID := map[ulid.ULID]*auth.APIKey{}
		for _, k := range keys {
			byID[k.ID] = k
		}
		Expect(byID[kept.ID].Active).To(BeTrue())
		Expect(byID[revoked.ID].Active).To(BeFalse())
	})
})
