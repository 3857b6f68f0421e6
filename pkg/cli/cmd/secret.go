package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/rzbill/berth/pkg/cli/format"
	"github.com/rzbill/berth/pkg/log"
	"github.com/rzbill/berth/pkg/secret"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// newSecretCmd creates the secret command group.
func newSecretCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secret",
		Short: "Manage the master secret store",
		Long: `Secrets live in an append-only master file under the data directory.
A secret is written once and never rotated by a deploy; use "secret set"
to seed a value before the first deploy generates one.`,
	}

	cmd.AddCommand(newSecretSetCmd())
	cmd.AddCommand(newSecretListCmd())
	return cmd
}

func newSecretSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <name>",
		Short: "Store a secret value, prompting without echo",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := secret.OpenFileStore(cfg.SecretsFile(), log.GetDefaultLogger())
			if err != nil {
				return err
			}

			name := args[0]
			if _, exists, err := store.Get(name); err != nil {
				return err
			} else if exists {
				return fmt.Errorf("secret %s already exists; the store is append-only", name)
			}

			value, err := promptSecret(fmt.Sprintf("Value for %s: ", name))
			if err != nil {
				return err
			}
			if value == "" {
				return fmt.Errorf("empty secret value")
			}

			if err := store.Set(name, value); err != nil {
				return err
			}
			fmt.Println(format.Success("Secret %s stored", name))
			return nil
		},
	}
}

func newSecretListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored secret names (values are never printed)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := secret.OpenFileStore(cfg.SecretsFile(), log.GetDefaultLogger())
			if err != nil {
				return err
			}

			keys, err := store.Keys()
			if err != nil {
				return err
			}
			if len(keys) == 0 {
				fmt.Println("No secrets stored")
				return nil
			}
			for _, k := range keys {
				fmt.Println(k)
			}
			return nil
		},
	}
}

// promptSecret reads a value from the terminal with echo disabled. When
// stdin is not a terminal (piped input), it falls back to a plain read.
func promptSecret(prompt string) (string, error) {
	fmt.Print(prompt)
	if term.IsTerminal(int(os.Stdin.Fd())) {
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(raw)), nil
	}

	var value string
	if _, err := fmt.Fscanln(os.Stdin, &value); err != nil {
		return "", err
	}
	return strings.TrimSpace(value), nil
}
