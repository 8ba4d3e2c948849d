package cmd

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/conneroisu/bruwatch/internal/secrets"
)

var secretsCmd = &cobra.Command{
	Use:   "secrets",
	Short: "Manage encrypted environment secrets",
}

var secretsSetCmd = &cobra.Command{
	Use:   "set <collection> <environment> <variable> [value]",
	Short: "Encrypt and store the value of a secret variable",
	Long: `Encrypt a value with secrets.key and store it for a secret variable of an
environment. When the value is omitted it is read from stdin, so it stays out
of the shell history.

Examples:
  bruwatch secrets set ./api dev token s3cr3t
  echo -n s3cr3t | bruwatch secrets set ./api dev token`,
	Args: cobra.RangeArgs(3, 4),
	RunE: runSecretsSet,
}

func init() {
	rootCmd.AddCommand(secretsCmd)
	secretsCmd.AddCommand(secretsSetCmd)
}

func runSecretsSet(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Secrets.Key == "" {
		return fmt.Errorf("secrets.key is not set (use BRUWATCH_SECRETS_KEY)")
	}

	collectionPath, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}

	value := ""
	if len(args) == 4 {
		value = args[3]
	} else {
		value, err = readValue(cmd)
		if err != nil {
			return err
		}
	}

	store, err := secrets.NewFileStore(cfg.Secrets.Path, cfg.Secrets.Key)
	if err != nil {
		return err
	}
	if err := store.Set(collectionPath, args[1], args[2], value); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Stored %s for environment %s\n", args[2], args[1])
	return nil
}

func readValue(cmd *cobra.Command) (string, error) {
	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok && f == os.Stdin {
		if info, err := f.Stat(); err == nil && info.Mode()&os.ModeCharDevice != 0 {
			fmt.Fprint(cmd.ErrOrStderr(), "Value: ")
		}
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read value: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
