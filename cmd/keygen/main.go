package main

import (
	"fmt"
	"os"

	"github.com/tjfontaine/webapi-sample/internal/interceptor"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: go run ./cmd/keygen <api-key>")
		fmt.Println("Generates the SHA-256 hash of an API key for an api-key interceptor in config.yaml")
		os.Exit(1)
	}

	apiKey := os.Args[1]
	keyHash := interceptor.HashAPIKey(apiKey)

	fmt.Printf("API Key: %s\n", apiKey)
	fmt.Printf("SHA-256 Hash: %s\n", keyHash)
	fmt.Println("\nAdd this to your config.yaml:")
	fmt.Printf("interceptors:\n")
	fmt.Printf("  - name: auth\n")
	fmt.Printf("    kind: api-key\n")
	fmt.Printf("    enabled: true\n")
	fmt.Printf("    key_hashes:\n")
	fmt.Printf("      - \"%s\"\n", keyHash)
}
