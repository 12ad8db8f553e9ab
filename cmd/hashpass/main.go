// Command hashpass prints the bcrypt hash for an operator password, for use
// as AUTH_OPERATOR_PASS_HASH.
package main

import (
	"fmt"
	"os"

	"weex-trading-bot/internal/auth"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: hashpass <password>")
		os.Exit(1)
	}

	hash, err := auth.HashPassword(os.Args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "hashpass: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(hash)
}
