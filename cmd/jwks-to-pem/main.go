// Command jwks-to-pem prints an identity provider's signing key in the PEM form expected by
// JWT_VERIFICATION_KEY.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"thumbgen/internal/util"
)

func main() {
	url := flag.String("url", os.Getenv("JWKS_URL"), "JWKS endpoint, e.g. https://<issuer>/.well-known/jwks.json")
	kid := flag.String("kid", "", "key id to export (default: first signing key)")
	flag.Parse()

	if *url == "" {
		fmt.Fprintln(os.Stderr, "missing -url (or JWKS_URL)")
		os.Exit(2)
	}
	if err := run(*url, *kid); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(url, kid string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("fetching JWKS: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetching JWKS: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	set, err := util.ParseJWKS(body)
	if err != nil {
		return err
	}
	key, err := set.Find(kid)
	if err != nil {
		return err
	}
	pemBytes, err := key.PEM()
	if err != nil {
		return err
	}
	fmt.Print(string(pemBytes))
	return nil
}
