package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"bucketadmin/internal/apiclient"
	"bucketadmin/internal/view"
)

// envAdminPassword is the basic-auth password sent by the remote commands.
const envAdminPassword = "BUCKETADMIN_PASSWORD"

var remoteCmd = &cobra.Command{
	Use:   "remote",
	Short: "Drive a running panel over its JSON API",
}

var remoteConfigureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Point the remote panel at a catalog database",
	RunE: func(cmd *cobra.Command, args []string) error {
		f := cmd.Flags()
		cfg := apiclient.DbConfig{Password: os.Getenv(envPassword)}
		cfg.Host, _ = f.GetString("host")
		cfg.Port, _ = f.GetString("port")
		cfg.User, _ = f.GetString("db-user")
		cfg.DBName, _ = f.GetString("dbname")

		return runPanel(cmd, func(ctx context.Context, p *apiclient.Panel) error {
			return p.ConfigureDB(ctx, cfg)
		})
	},
}

var remoteQueryCmd = &cobra.Command{
	Use:   "query",
	Short: "Search buckets by id and/or exact name",
	RunE: func(cmd *cobra.Command, args []string) error {
		bid, _ := cmd.Flags().GetString("bid")
		bname, _ := cmd.Flags().GetString("bname")
		return runPanel(cmd, func(ctx context.Context, p *apiclient.Panel) error {
			return p.Search(ctx, bid, bname)
		})
	},
}

var remoteUsersCmd = &cobra.Command{
	Use:   "users",
	Short: "List users with file counts and stored bytes",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPanel(cmd, func(ctx context.Context, p *apiclient.Panel) error {
			return p.LoadUsers(ctx)
		})
	},
}

var remotePartitionsCmd = &cobra.Command{
	Use:   "partitions <userId>",
	Short: "Show the 16x16 partition grid of a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid user id %q", args[0])
		}
		return runPanel(cmd, func(ctx context.Context, p *apiclient.Panel) error {
			return p.SelectUser(ctx, id)
		})
	},
}

// runPanel performs one panel action against --server and prints the
// resulting panel state. The error is already part of the output.
func runPanel(cmd *cobra.Command, action func(context.Context, *apiclient.Panel) error) error {
	server, _ := cmd.Flags().GetString("server")
	user, _ := cmd.Flags().GetString("user")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	opts := []apiclient.Option{apiclient.WithTimeout(timeout)}
	if user != "" {
		opts = append(opts, apiclient.WithBasicAuth(user, os.Getenv(envAdminPassword)))
	}
	p := apiclient.NewPanel(apiclient.New(server, opts...))

	err := action(cmd.Context(), p)
	fmt.Fprint(cmd.OutOrStdout(), view.RenderPanelText(p.Snapshot()))
	if err != nil {
		cmd.SilenceErrors = true
		return err
	}
	return nil
}

func init() {
	pf := remoteCmd.PersistentFlags()
	pf.String("server", "http://localhost:8888", "panel base URL")
	pf.String("user", "", "basic-auth user (password from "+envAdminPassword+")")
	pf.Duration("timeout", apiclient.DefaultTimeout, "request timeout")

	f := remoteConfigureCmd.Flags()
	f.String("host", "", "database host")
	f.String("port", "3306", "database port")
	f.String("db-user", "", "database user (password from "+envPassword+")")
	f.String("dbname", apiclient.DefaultDBName, "database name")

	remoteQueryCmd.Flags().String("bid", "", "bucket id")
	remoteQueryCmd.Flags().String("bname", "", "bucket name (exact match)")

	remoteCmd.AddCommand(remoteConfigureCmd)
	remoteCmd.AddCommand(remoteQueryCmd)
	remoteCmd.AddCommand(remoteUsersCmd)
	remoteCmd.AddCommand(remotePartitionsCmd)
	rootCmd.AddCommand(remoteCmd)
}
