package main

import (
	"errors"
	"strings"

	"github.com/open-sspm/intreg/internal/auth"
	"github.com/spf13/cobra"
)

var (
	hashTokenStdin    bool
	hashTokenGenerate bool
)

var hashTokenCmd = &cobra.Command{
	Use:   "hash-token",
	Short: "Hash an API token for API_TOKEN_HASH.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		token, generated, err := resolveToken(cmd)
		if err != nil {
			return err
		}
		hash, err := auth.HashToken(token)
		if err != nil {
			return err
		}
		if generated {
			cmd.Printf("token: %s\n", token)
		}
		cmd.Println(hash)
		return nil
	},
}

func resolveToken(cmd *cobra.Command) (string, bool, error) {
	if hashTokenStdin && hashTokenGenerate {
		return "", false, errors.New("--stdin and --generate are mutually exclusive")
	}
	if hashTokenGenerate {
		token, err := generateToken(32)
		if err != nil {
			return "", false, err
		}
		return token, true, nil
	}
	if hashTokenStdin {
		raw, err := readStdinLine()
		if err != nil {
			return "", false, err
		}
		token := strings.TrimRight(raw, "\r\n")
		if token == "" {
			return "", false, errors.New("token is empty")
		}
		return token, false, nil
	}
	token, err := promptSecret(cmd, "Token")
	return token, false, err
}

func init() {
	hashTokenCmd.Flags().BoolVar(&hashTokenStdin, "stdin", false, "Read the token from stdin")
	hashTokenCmd.Flags().BoolVar(&hashTokenGenerate, "generate", false, "Generate a random token and print it with its hash")
}
