// Command envprint prints the effective configuration with secrets redacted.
// Useful for debugging deployment environments.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/mlehotskylf-org/auth-gateway/internal/config"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	output, err := json.MarshalIndent(cfg.Redacted(), "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error marshaling config: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(string(output))
}
