// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 auth-server-jwt Contributors

//go:build integration

package authflow_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"sync"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"golang.org/x/crypto/bcrypt"

	"github.com/adimalka14/auth-server-jwt/internal/auth"
	"github.com/adimalka14/auth-server-jwt/internal/httpapi"
)

type tokenBody struct {
	Message     string `json:"message"`
	UserID      string `json:"userId"`
	AccessToken string `json:"accessToken"`
}

var _ = Describe("HTTP auth flow against PostgreSQL", func() {
	var (
		server *httptest.Server
		client *http.Client
	)

	BeforeEach(func() {
		truncateUsers(context.Background())

		hasher, err := auth.NewHasher(auth.AlgorithmBcrypt, bcrypt.MinCost)
		Expect(err).NotTo(HaveOccurred())
		creds, err := auth.NewCredentialStore(env.Users, hasher)
		Expect(err).NotTo(HaveOccurred())
		tokens := auth.TokenConfig{AccessSecret: "it-access", RefreshSecret: "it-refresh"}
		issuer, err := auth.NewTokenIssuer(tokens)
		Expect(err).NotTo(HaveOccurred())
		verifier, err := auth.NewTokenVerifier(tokens)
		Expect(err).NotTo(HaveOccurred())
		flow, err := auth.NewSessionFlow(creds, issuer, verifier, nil)
		Expect(err).NotTo(HaveOccurred())

		handler, err := httpapi.NewRouter(httpapi.Options{Sessions: flow})
		Expect(err).NotTo(HaveOccurred())
		server = httptest.NewServer(handler)

		jar, err := cookiejar.New(nil)
		Expect(err).NotTo(HaveOccurred())
		client = &http.Client{Jar: jar}
	})

	AfterEach(func() {
		server.Close()
	})

	post := func(path, body string) *http.Response {
		resp, err := client.Post(server.URL+path, "application/json", strings.NewReader(body))
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(resp.Body.Close)
		return resp
	}

	get := func(path, bearer string) *http.Response {
		req, err := http.NewRequest(http.MethodGet, server.URL+path, nil)
		Expect(err).NotTo(HaveOccurred())
		if bearer != "" {
			req.Header.Set("Authorization", "Bearer "+bearer)
		}
		resp, err := client.Do(req)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(resp.Body.Close)
		return resp
	}

	decode := func(resp *http.Response) tokenBody {
		var body tokenBody
		Expect(json.NewDecoder(resp.Body).Decode(&body)).To(Succeed())
		return body
	}

	It("registers, logs in, refreshes, reads the profile and logs out", func() {
		Expect(post("/auth/register", `{"username":"alice","password":"hunter2"}`).StatusCode).
			To(Equal(http.StatusCreated))

		resp := post("/auth/login", `{"username":"alice","password":"hunter2"}`)
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		login := decode(resp)
		Expect(login.AccessToken).NotTo(BeEmpty())

		resp = get("/auth/refresh", "")
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		refreshed := decode(resp)
		Expect(refreshed.UserID).To(Equal(login.UserID))
		Expect(refreshed.AccessToken).NotTo(Equal(login.AccessToken))

		resp = get("/users/"+login.UserID, refreshed.AccessToken)
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		var profile map[string]any
		Expect(json.NewDecoder(resp.Body).Decode(&profile)).To(Succeed())
		Expect(profile).To(HaveKeyWithValue("username", "alice"))
		Expect(profile).NotTo(HaveKey("password"))

		Expect(get("/auth/logout", refreshed.AccessToken).StatusCode).To(Equal(http.StatusOK))
		Expect(get("/auth/refresh", "").StatusCode).To(Equal(http.StatusBadRequest))
	})

	It("rejects wrong passwords and unknown users alike", func() {
		Expect(post("/auth/register", `{"username":"alice","password":"hunter2"}`).StatusCode).
			To(Equal(http.StatusCreated))

		wrong := post("/auth/login", `{"username":"alice","password":"nope"}`)
		unknown := post("/auth/login", `{"username":"bob","password":"hunter2"}`)
		Expect(wrong.StatusCode).To(Equal(http.StatusUnauthorized))
		Expect(unknown.StatusCode).To(Equal(http.StatusUnauthorized))
		Expect(decode(wrong).Message).To(Equal(decode(unknown).Message))
	})

	It("answers one 201 and one 409 for a concurrent duplicate registration", func() {
		codes := make([]int, 2)
		var wg sync.WaitGroup
		for i := range codes {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				resp, err := http.Post(server.URL+"/auth/register", "application/json",
					strings.NewReader(`{"username":"twin","password":"hunter2"}`))
				Expect(err).NotTo(HaveOccurred())
				_ = resp.Body.Close()
				codes[i] = resp.StatusCode
			}()
		}
		wg.Wait()

		Expect(codes).To(ConsistOf(http.StatusCreated, http.StatusConflict))
	})
})
