package main

import (
	"bufio"
	"crypto/rand"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// promptSecret reads a value twice from the terminal without echo.
func promptSecret(cmd *cobra.Command, label string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("no %s provided and stdin is not a terminal", label)
	}

	cmd.Printf("%s: ", label)
	first, err := term.ReadPassword(fd)
	cmd.Println()
	if err != nil {
		return "", err
	}
	if len(first) == 0 {
		return "", fmt.Errorf("%s is empty", label)
	}

	cmd.Printf("Confirm %s: ", label)
	second, err := term.ReadPassword(fd)
	cmd.Println()
	if err != nil {
		return "", err
	}
	if string(first) != string(second) {
		return "", fmt.Errorf("%s values do not match", label)
	}
	return string(first), nil
}

func readStdinLine() (string, error) {
	in, err := os.Stdin.Stat()
	if err != nil {
		return "", err
	}
	if in.Mode()&os.ModeCharDevice != 0 {
		return "", errors.New("stdin is a terminal; omit --stdin to prompt")
	}

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", err
		}
		return "", nil
	}
	return scanner.Text(), nil
}

func generateToken(length int) (string, error) {
	if length < 16 {
		return "", errors.New("token length too short")
	}
	const alphabet = "abcdefghijkmnopqrstuvwxyzABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	const alphabetLen = byte(len(alphabet))
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	for i := range b {
		b[i] = alphabet[b[i]%alphabetLen]
	}
	return string(b), nil
}
