// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 auth-server-jwt Contributors

// Command gen-schema writes the OpenAPI document served at /docs/openapi.json
// so it can be published without running the server.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/adimalka14/auth-server-jwt/internal/httpapi"
)

func main() {
	outPath := pflag.String("out", filepath.Join("docs", "openapi.json"), "output file")
	version := pflag.String("version", "dev", "API version recorded in the document")
	pflag.Parse()

	if err := run(*outPath, *version); err != nil {
		fmt.Fprintf(os.Stderr, "Error generating schema: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Generated %s\n", *outPath)
}

func run(outPath, version string) error {
	doc, err := httpapi.OpenAPIDocument(version)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o750); err != nil {
		return oops.With("path", outPath).Wrapf(err, "creating directory")
	}
	if err := os.WriteFile(outPath, append(doc, '\n'), 0o600); err != nil {
		return oops.With("path", outPath).Wrapf(err, "writing file")
	}
	return nil
}
