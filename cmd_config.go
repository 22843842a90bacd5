package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"

	"bucketadmin/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file with defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, baseDir, err := configPath()
		if err != nil {
			return err
		}
		cfg := config.Default(baseDir)
		if err := config.Init(path, cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", path)
		fmt.Printf("Data Dir: %s\n", cfg.DataDir)
		fmt.Printf("Listen:   %s\n", cfg.Listen)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, path, err := loadConfig()
		if err != nil {
			return err
		}
		shown := *cfg
		if shown.Admin.PasswordHash != "" {
			shown.Admin.PasswordHash = "(set)"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "# %s\n", path)
		m := &config.Manager{}
		return m.Write(cmd.OutOrStdout(), &shown)
	},
}

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Manage panel access",
}

var adminPasswdCmd = &cobra.Command{
	Use:   "passwd [username]",
	Short: "Set the basic-auth credentials of the panel",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, path, err := loadConfig()
		if err != nil {
			return err
		}
		username := cfg.Admin.Username
		if len(args) == 1 {
			username = args[0]
		}
		if username == "" {
			username = "admin"
		}

		password, err := readNewPassword()
		if err != nil {
			return err
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("hashing password: %w", err)
		}

		cfg.Admin.Username = username
		cfg.Admin.PasswordHash = string(hash)
		if err := config.WriteToFile(path, cfg); err != nil {
			return err
		}
		fmt.Printf("Credentials for %q written to %s\n", username, path)
		return nil
	},
}

// readNewPassword prompts twice on a terminal, or reads one line from a
// pipe.
func readNewPassword() (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			return "", fmt.Errorf("reading password: %w", err)
		}
		return validPassword(strings.TrimRight(line, "\r\n"))
	}

	fmt.Fprint(os.Stderr, "New password: ")
	first, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	fmt.Fprint(os.Stderr, "Repeat password: ")
	second, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	if string(first) != string(second) {
		return "", errors.New("passwords do not match")
	}
	return validPassword(string(first))
}

func validPassword(p string) (string, error) {
	if len(p) < 8 {
		return "", errors.New("password must be at least 8 characters")
	}
	if len(p) > 72 {
		return "", errors.New("password must be at most 72 bytes")
	}
	return p, nil
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	adminCmd.AddCommand(adminPasswdCmd)

	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(adminCmd)
}
