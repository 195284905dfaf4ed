// Command genkey prints a random secret for DEADDROP_ADMIN_SECRET.
package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

func main() {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		panic(err)
	}

	fmt.Printf("DEADDROP_ADMIN_SECRET=%s\n", hex.EncodeToString(secret))
}
