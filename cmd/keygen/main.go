// Command keygen generates publishable API keys for the auth.public_keys
// config list. Publishable keys identify a frontend deployment, not a user,
// so they carry no secret material beyond unguessability.
package main

import (
	"crypto/rand"
	"encoding/base32"
	"flag"
	"fmt"
	"os"
	"strings"
)

var keyEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

func main() {
	prefix := flag.String("prefix", "pk_live_", "key prefix (pk_live_, pk_test_ or sb_publishable_)")
	count := flag.Int("n", 1, "number of keys to generate")
	yaml := flag.Bool("yaml", false, "print as an auth.public_keys YAML snippet")
	flag.Parse()

	switch *prefix {
	case "pk_live_", "pk_test_", "sb_publishable_":
	default:
		fmt.Fprintf(os.Stderr, "unsupported prefix %q\n", *prefix)
		os.Exit(1)
	}

	keys := make([]string, 0, *count)
	for i := 0; i < *count; i++ {
		key, err := generateKey(*prefix)
		if err != nil {
			fmt.Fprintf(os.Stderr, "generate key: %v\n", err)
			os.Exit(1)
		}
		keys = append(keys, key)
	}

	if *yaml {
		fmt.Println("auth:")
		fmt.Println("  public_keys:")
		for _, key := range keys {
			fmt.Printf("    - %s\n", key)
		}
		return
	}
	fmt.Println(strings.Join(keys, "\n"))
}

func generateKey(prefix string) (string, error) {
	b := make([]byte, 20)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return prefix + strings.ToLower(keyEncoding.EncodeToString(b)), nil
}
