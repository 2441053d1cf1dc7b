package main

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/pders01/fwrdpost/internal/config"
	"github.com/pders01/fwrdpost/internal/control"
	"github.com/pders01/fwrdpost/internal/storage"
)

var generateConfigCmd = &cobra.Command{
	Use:   "generate-config [path]",
	Short: "Write a default configuration file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var configFile string
		if len(args) == 1 {
			configFile = args[0]
		} else {
			home, _ := os.UserHomeDir()
			configFile = filepath.Join(home, ".config", "fwrdpost", "config.toml")
		}

		if err := config.GenerateDefaultConfig(configFile); err != nil {
			return fmt.Errorf("failed to generate config: %w", err)
		}
		fmt.Printf("Generated default configuration at: %s\n", configFile)
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Load users, tasks, messages and sessions from a TOML file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		st, err := openStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		stats, err := storage.Import(cmd.Context(), st, f)
		if err != nil {
			return err
		}
		fmt.Printf("Imported %s\n", stats)
		fmt.Println("Run `fwrdpost reload` to apply the changes to a running server.")
		return nil
	},
}

var reloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Rebuild every user's schedule on the running server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := controlClient()
		if err != nil {
			return err
		}
		if err := c.Reload(cmd.Context()); err != nil {
			return err
		}
		fmt.Println("Reload accepted")
		return nil
	},
}

var restartCmd = &cobra.Command{
	Use:   "restart <user-id>",
	Short: "Restart one user's schedule on the running server",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := controlClient()
		if err != nil {
			return err
		}
		if err := c.Restart(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("Restart of %s accepted\n", args[0])
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "List the job hosts of the running server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := controlClient()
		if err != nil {
			return err
		}
		hosts, err := c.Status(cmd.Context())
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "USER\tRUNNING\tJOBS\tSTARTED")
		for _, h := range hosts {
			started := "-"
			if !h.StartedAt.IsZero() {
				started = h.StartedAt.Local().Format(time.DateTime)
			}
			fmt.Fprintf(w, "%s\t%t\t%d\t%s\n", h.UserID, h.Running, h.Jobs, started)
		}
		return w.Flush()
	},
}

func controlClient() (*control.Client, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return control.NewClient(cfg.Control.Addr, cfg.Control.AdminToken), nil
}
