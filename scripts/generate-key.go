// Package main prints a fresh random secret for PORTAL_JWT_SECRET, in the
// .env format godotenv reads. The same secret signs session cookies and keys
// the OAuth state cipher, so rotating it signs every user out.
package main

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log"
)

func main() {
	randomBytes := make([]byte, 48)
	if _, err := rand.Read(randomBytes); err != nil {
		log.Fatal(err)
	}
	fmt.Printf("PORTAL_JWT_SECRET=%s\n", base64.RawURLEncoding.EncodeToString(randomBytes))
}
