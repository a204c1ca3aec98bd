package cli

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/user/isp-cabinet/internal/auth"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage API credentials",
}

func init() {
	tokenCmd.AddCommand(
		&cobra.Command{
			Use:   "generate",
			Short: "Generate a new API token and its config digest",
			RunE: func(cmd *cobra.Command, args []string) error {
				raw := strings.ReplaceAll(uuid.NewString()+uuid.NewString(), "-", "")
				fmt.Printf("token:  %s\n", raw)
				fmt.Printf("sha256: %s\n", auth.HashToken(raw))
				return nil
			},
		},
		&cobra.Command{
			Use:   "hash <token>",
			Short: "Print the sha256 digest of a token for the config file",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				fmt.Println(auth.HashToken(args[0]))
				return nil
			},
		},
		&cobra.Command{
			Use:   "password <password>",
			Short: "Print the bcrypt hash of a basic auth password",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				hash, err := auth.HashPassword(args[0])
				if err != nil {
					return err
				}
				fmt.Println(hash)
				return nil
			},
		},
	)
}
