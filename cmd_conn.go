package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"bucketadmin/internal/domain"
	"bucketadmin/internal/service"
)

// envPassword holds the database password for `conn add` and
// `remote configure`, keeping it out of shell history.
const envPassword = "BUCKETADMIN_DB_PASSWORD"

var connCmd = &cobra.Command{
	Use:     "conn",
	Aliases: []string{"connections"},
	Short:   "Manage catalog database connections",
}

var connListCmd = &cobra.Command{
	Use:   "list",
	Short: "List connection profiles",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		dbs := a.Databases()
		conns, err := dbs.ListConnections()
		if err != nil {
			return err
		}
		if len(conns) == 0 {
			fmt.Println("No connections configured.")
			return nil
		}
		var defaultID string
		if def, err := dbs.DefaultConnection(); err == nil {
			defaultID = def.ID
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "\tNAME\tDRIVER\tADDRESS\tDATABASE\tUSER\tCREATED\tID")
		for _, c := range conns {
			mark := ""
			if c.ID == defaultID {
				mark = "*"
			}
			addr := c.Host
			if c.Port > 0 {
				addr = fmt.Sprintf("%s:%d", c.Host, c.Port)
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				mark, c.Name, c.Driver, addr, c.Database, c.Username, humanize.Time(c.CreatedAt), c.ID)
		}
		return tw.Flush()
	},
}

var connAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add a connection profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		f := cmd.Flags()
		input := service.CreateDBConnInput{Name: args[0]}
		input.Driver, _ = f.GetString("driver")
		input.Host, _ = f.GetString("host")
		input.Port, _ = f.GetInt("port")
		input.Database, _ = f.GetString("database")
		input.Username, _ = f.GetString("user")
		input.SSLMode, _ = f.GetString("sslmode")
		input.Password = os.Getenv(envPassword)

		dbs := a.Databases()
		if check, _ := f.GetBool("test"); check {
			ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
			defer cancel()
			if err := dbs.TestConfig(ctx, input); err != nil {
				return fmt.Errorf("connection test failed: %w", err)
			}
		}

		conn, err := dbs.CreateConnection(input)
		if err != nil {
			return err
		}
		if def, _ := f.GetBool("default"); def {
			if err := dbs.SetDefault(conn.ID); err != nil {
				return err
			}
		}
		fmt.Printf("Added connection %q (%s)\n", conn.Name, conn.ID)
		return nil
	},
}

var connRemoveCmd = &cobra.Command{
	Use:     "remove <id|name>",
	Aliases: []string{"rm"},
	Short:   "Delete a connection profile and its stored password",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withConnection(args[0], func(dbs *service.DatabaseService, conn *domain.DatabaseConnection) error {
			if err := dbs.DeleteConnection(conn.ID); err != nil {
				return err
			}
			fmt.Printf("Removed connection %q\n", conn.Name)
			return nil
		})
	},
}

var connTestCmd = &cobra.Command{
	Use:   "test <id|name>",
	Short: "Ping a catalog database",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withConnection(args[0], func(dbs *service.DatabaseService, conn *domain.DatabaseConnection) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
			defer cancel()

			start := time.Now()
			if err := dbs.TestConnection(ctx, conn.ID); err != nil {
				return fmt.Errorf("%s: %w", conn.Name, err)
			}
			fmt.Printf("%s: ok (%s)\n", conn.Name, time.Since(start).Round(time.Millisecond))
			return nil
		})
	},
}

var connDefaultCmd = &cobra.Command{
	Use:   "default <id|name>",
	Short: "Make a profile the default for requests that name none",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withConnection(args[0], func(dbs *service.DatabaseService, conn *domain.DatabaseConnection) error {
			if err := dbs.SetDefault(conn.ID); err != nil {
				return err
			}
			fmt.Printf("Default connection is now %q\n", conn.Name)
			return nil
		})
	},
}

var connExportCmd = &cobra.Command{
	Use:   "export [file]",
	Short: "Write connection profiles as YAML (passwords excluded)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		var w io.Writer = cmd.OutOrStdout()
		if len(args) == 1 {
			f, err := os.Create(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			w = f
		}
		return a.Databases().Export(w)
	},
}

var connImportCmd = &cobra.Command{
	Use:   "import [file]",
	Short: "Create connection profiles from a YAML export",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		var r io.Reader = os.Stdin
		if len(args) == 1 {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			r = f
		}
		n, err := a.Databases().Import(r)
		if err != nil {
			return err
		}
		fmt.Printf("Imported %d connection(s)\n", n)
		return nil
	},
}

// withConnection opens the app and runs fn with the profile matching ref
// by id or name.
func withConnection(ref string, fn func(*service.DatabaseService, *domain.DatabaseConnection) error) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	dbs := a.Databases()
	conn, err := dbs.GetConnection(ref)
	if errors.Is(err, domain.ErrNotFound) {
		conn, err = findByName(dbs, ref)
	}
	if err != nil {
		return err
	}
	return fn(dbs, conn)
}

func findByName(dbs *service.DatabaseService, name string) (*domain.DatabaseConnection, error) {
	conns, err := dbs.ListConnections()
	if err != nil {
		return nil, err
	}
	for i := range conns {
		if conns[i].Name == name {
			return &conns[i], nil
		}
	}
	return nil, fmt.Errorf("connection %q: %w", name, domain.ErrNotFound)
}

func init() {
	f := connAddCmd.Flags()
	f.StringP("driver", "d", "mysql", "database driver (mysql, postgres, sqlite)")
	f.StringP("host", "H", "", "host name, or file path for sqlite")
	f.IntP("port", "p", 0, "port (driver default when 0)")
	f.StringP("database", "D", "test", "database name")
	f.StringP("user", "u", "", "user name")
	f.String("sslmode", "", "postgres sslmode")
	f.Bool("default", false, "make this the default connection")
	f.Bool("test", false, "ping the database before saving")

	connCmd.AddCommand(connListCmd)
	connCmd.AddCommand(connAddCmd)
	connCmd.AddCommand(connRemoveCmd)
	connCmd.AddCommand(connTestCmd)
	connCmd.AddCommand(connDefaultCmd)
	connCmd.AddCommand(connExportCmd)
	connCmd.AddCommand(connImportCmd)
	rootCmd.AddCommand(connCmd)
}
