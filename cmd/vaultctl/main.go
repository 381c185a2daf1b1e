// vaultctl is the operator tool for the governance ledger: consistency
// checks, repairs and legacy renumbering against the database.
package main

import (
	"fmt"
	"os"

	"github.com/jedediahbey-rgb/OmniGoVault01--sub002/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "vaultctl:", err)
		os.Exit(1)
	}
}
