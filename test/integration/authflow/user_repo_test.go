// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 auth-server-jwt Contributors

//go:build integration

package authflow_test

import (
	"context"
	"sync"

	"github.com/oklog/ulid/v2"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/adimalka14/auth-server-jwt/internal/auth"
	"github.com/adimalka14/auth-server-jwt/internal/store"
)

var _ = Describe("UserRepository", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
		truncateUsers(ctx)
	})

	Describe("Create", func() {
		It("persists every field", func() {
			user := newTestUser("alice")
			Expect(env.Users.Create(ctx, user)).To(Succeed())

			got, err := env.Users.GetByID(ctx, user.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Username).To(Equal("alice"))
			Expect(got.PasswordHash).To(Equal(user.PasswordHash))
			Expect(got.CreatedAt).NotTo(BeZero())
		})

		It("rejects a duplicate username", func() {
			Expect(env.Users.Create(ctx, newTestUser("alice"))).To(Succeed())

			err := env.Users.Create(ctx, newTestUser("alice"))
			Expect(err).To(MatchError(auth.ErrDuplicateUsername))
		})

		It("lets exactly one of many concurrent inserts win", func() {
			const attempts = 12
			errs := make([]error, attempts)
			var wg sync.WaitGroup
			for i := range attempts {
				wg.Add(1)
				go func() {
					defer GinkgoRecover()
					defer wg.Done()
					errs[i] = env.Users.Create(ctx, newTestUser("race"))
				}()
			}
			wg.Wait()

			var created int
			for _, err := range errs {
				if err == nil {
					created++
					continue
				}
				Expect(err).To(MatchError(auth.ErrDuplicateUsername))
			}
			Expect(created).To(Equal(1))
		})
	})

	Describe("lookups", func() {
		It("finds users by username with exact case", func() {
			Expect(env.Users.Create(ctx, newTestUser("Alice"))).To(Succeed())

			_, err := env.Users.GetByUsername(ctx, "Alice")
			Expect(err).NotTo(HaveOccurred())

			_, err = env.Users.GetByUsername(ctx, "alice")
			Expect(err).To(MatchError(auth.ErrNotFound))
		})

		It("reports unknown ids as not found", func() {
			_, err := env.Users.GetByID(ctx, ulid.Make())
			Expect(err).To(MatchError(auth.ErrNotFound))
		})
	})

	Describe("UpdatePassword", func() {
		It("replaces the stored hash", func() {
			user := newTestUser("bob")
			Expect(env.Users.Create(ctx, user)).To(Succeed())

			Expect(env.Users.UpdatePassword(ctx, user.ID, "$argon2id$new")).To(Succeed())

			got, err := env.Users.GetByID(ctx, user.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.PasswordHash).To(Equal("$argon2id$new"))
		})

		It("reports unknown ids as not found", func() {
			Expect(env.Users.UpdatePassword(ctx, ulid.Make(), "x")).To(MatchError(auth.ErrNotFound))
		})
	})

	Describe("migrations", func() {
		It("are fully applied", func() {
			m, err := store.NewMigrator(env.connStr)
			Expect(err).NotTo(HaveOccurred())
			defer func() { _ = m.Close() }()

			pending, err := m.Pending()
			Expect(err).NotTo(HaveOccurred())
			Expect(pending).To(BeEmpty())

			_, dirty, err := m.Version()
			Expect(err).NotTo(HaveOccurred())
			Expect(dirty).To(BeFalse())
		})
	})

	It("answers pings", func() {
		Expect(env.Users.Ping(ctx)).To(Succeed())
	})
})
