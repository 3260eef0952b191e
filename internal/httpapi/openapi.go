// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 auth-server-jwt Contributors

package httpapi

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
	"github.com/samber/oops"
)

// OpenAPIDocument renders the OpenAPI 3.1 description of the API. Request and
// response schemas are reflected from the handler types.
func OpenAPIDocument(version string) ([]byte, error) {
	if version == "" {
		version = "dev"
	}

	credentials := reflectSchema(&credentialsRequest{})
	message := reflectSchema(&messageResponse{})

	jsonBody := func(s *jsonschema.Schema) map[string]any {
		return map[string]any{"application/json": map[string]any{"schema": s}}
	}
	reply := func(description string, s *jsonschema.Schema) map[string]any {
		return map[string]any{"description": description, "content": jsonBody(s)}
	}
	bearer := []map[string]any{{"bearerAuth": []string{}}}

	doc := map[string]any{
		"openapi": "3.1.0",
		"info": map[string]any{
			"title":       "Auth Server",
			"description": "User registration and JWT access/refresh token authentication",
			"version":     version,
		},
		"components": map[string]any{
			"securitySchemes": map[string]any{
				"bearerAuth":  map[string]any{"type": "http", "scheme": "bearer", "bearerFormat": "JWT"},
				"refreshAuth": map[string]any{"type": "apiKey", "in": "cookie", "name": RefreshCookieName},
			},
		},
		"paths": map[string]any{
			"/auth/register": map[string]any{
				"post": map[string]any{
					"tags":        []string{"Auth"},
					"summary":     "Register a new user",
					"requestBody": map[string]any{"required": true, "content": jsonBody(credentials)},
					"responses": map[string]any{
						"201": reply("User registered", reflectSchema(&registerResponse{})),
						"400": reply("Missing fields or password too short", message),
						"409": reply("Username already exists", message),
						"429": reply("Rate limited", message),
						"500": reply("Registration failed", message),
					},
				},
			},
			"/auth/login": map[string]any{
				"post": map[string]any{
					"tags":        []string{"Auth"},
					"summary":     "Log in and receive tokens",
					"description": "Returns an access token and sets the refreshToken cookie.",
					"requestBody": map[string]any{"required": true, "content": jsonBody(credentials)},
					"responses": map[string]any{
						"200": reply("Logged in", reflectSchema(&tokenResponse{})),
						"400": reply("Missing fields", message),
						"401": reply("Invalid username or password", message),
						"429": reply("Rate limited", message),
						"500": reply("Login failed", message),
					},
				},
			},
			"/auth/logout": map[string]any{
				"get": map[string]any{
					"tags":     []string{"Auth"},
					"summary":  "Clear the refresh token cookie",
					"security": bearer,
					"responses": map[string]any{
						"200": reply("Logged out", message),
						"400": reply("No token provided", message),
						"403": reply("Invalid access token", message),
					},
				},
			},
			"/auth/refresh": map[string]any{
				"get": map[string]any{
					"tags":     []string{"Auth"},
					"summary":  "Issue a new access token from the refresh cookie",
					"security": []map[string]any{{"refreshAuth": []string{}}},
					"responses": map[string]any{
						"200": reply("Access token refreshed", reflectSchema(&tokenResponse{})),
						"400": reply("Missing refresh token", message),
						"403": reply("Invalid refresh token", message),
					},
				},
			},
			"/users/{id}": map[string]any{
				"get": map[string]any{
					"tags":     []string{"Users"},
					"summary":  "Get user details",
					"security": bearer,
					"parameters": []map[string]any{{
						"in": "path", "name": "id", "required": true,
						"schema": map[string]any{"type": "string"},
					}},
					"responses": map[string]any{
						"200": reply("User details", reflectSchema(&userResponse{})),
						"400": reply("No token provided", message),
						"403": reply("Invalid access token", message),
						"404": reply("User not found", message),
						"500": reply("Lookup failed", message),
					},
				},
			},
		},
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, oops.With("operation", "render openapi document").Wrap(err)
	}
	return data, nil
}
