// Command hashpw hashes a password with bcrypt or verifies one against a hash
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"syscall"

	"github.com/go-while/go-easyweb/internal/database"
	"golang.org/x/term"
)

func main() {
	var (
		cost   = flag.Int("cost", 10, "bcrypt cost (4-31)")
		verify = flag.String("verify", "", "verify the password against this bcrypt hash instead of hashing")
	)
	flag.Parse()

	fmt.Print("Enter password: ")
	password, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		log.Fatalf("failed to read password: %v", err)
	}

	if *verify != "" {
		ok, err := database.VerifyHash(string(password), *verify)
		if err != nil {
			log.Fatalf("failed to verify: %v", err)
		}
		if !ok {
			fmt.Println("password does NOT match")
			os.Exit(1)
		}
		fmt.Println("password matches")
		return
	}

	if err := database.ValidatePassword(string(password)); err != nil {
		log.Fatalf("%v", err)
	}

	fmt.Print("Confirm password: ")
	confirmPassword, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		log.Fatalf("failed to read password confirmation: %v", err)
	}
	if string(password) != string(confirmPassword) {
		log.Fatalf("passwords do not match")
	}

	hashed, err := database.Hash(string(password), *cost)
	if err != nil {
		log.Fatalf("%v", err)
	}
	fmt.Println(hashed)
}
