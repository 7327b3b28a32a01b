package main

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
)

var hashCost int

var hashTokenCmd = &cobra.Command{
	Use:   "hash-token [token]",
	Short: "Hash an API token for auth.tokens",
	Long: `Prints the bcrypt hash of token for the auth.tokens config list. Without
an argument a random token is generated and printed along with its hash.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		token := ""
		if len(args) == 1 {
			token = args[0]
		} else {
			token = "nf_" + strings.ReplaceAll(uuid.NewString(), "-", "")
			fmt.Fprintln(cmd.OutOrStdout(), "token:", token)
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(token), hashCost)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "hash: ", string(hash))
		return nil
	},
}

func init() {
	hashTokenCmd.Flags().IntVar(&hashCost, "cost", bcrypt.DefaultCost, "bcrypt cost")
}
