package cmd

import (
	"bufio"
	"fmt"
	"strings"

	identity "github.com/goliatone/go-identity"
	"github.com/spf13/cobra"
)

var hashCmd = &cobra.Command{
	Use:   "hash --login <login> --email <email>",
	Short: "Compute the stored digest for a password",
	Long: `Reads a password from stdin and prints the digest a local identity with the
given login and email would store under the configured global secret.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		login, _ := cmd.Flags().GetString("login")
		email, _ := cmd.Flags().GetString("email")

		hasher, err := identity.NewCredentialHasher(cfg.GlobalSecret)
		if err != nil {
			return err
		}

		reader := bufio.NewReader(cmd.InOrStdin())
		password, err := reader.ReadString('\n')
		if err != nil && password == "" {
			return fmt.Errorf("failed to read password from stdin: %w", err)
		}
		password = strings.TrimRight(password, "\r\n")

		fmt.Fprintln(cmd.OutOrStdout(), hasher.Hash(password, login, email))
		return nil
	},
}

func init() {
	hashCmd.Flags().String("login", "", "Identity login")
	hashCmd.Flags().String("email", "", "Identity email")
	_ = hashCmd.MarkFlagRequired("login")
	_ = hashCmd.MarkFlagRequired("email")
	rootCmd.AddCommand(hashCmd)
}
