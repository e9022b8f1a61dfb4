// Command admintoken mints a token for the audit review surface. It prints
// the plaintext once for the operator's secret manager and the bcrypt hash
// for SANCTUM_ADMIN_TOKEN_HASH. The service itself never sees the plaintext.
package main

import (
	"flag"
	"fmt"
	"os"

	"sanctum/pkg/platform/secrets"
)

func main() {
	hashOnly := flag.String("hash", "", "hash an existing token instead of generating a new one")
	flag.Parse()

	token := *hashOnly
	if token == "" {
		generated, err := secrets.Generate()
		if err != nil {
			fmt.Fprintf(os.Stderr, "generate token: %v\n", err)
			os.Exit(1)
		}
		token = generated
		fmt.Printf("token: %s\n", token)
	}

	hash, err := secrets.Hash(token)
	if err != nil {
		fmt.Fprintf(os.Stderr, "hash token: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("SANCTUM_ADMIN_TOKEN_HASH=%s\n", hash)
}
