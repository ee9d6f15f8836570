package cmd

import (
	"fmt"

	"github.com/rogersnm/skillmap/internal/config"
	"github.com/rogersnm/skillmap/internal/id"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or change settings in config.yaml",
}

var configStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "Data: %s\n", dataDir)
		defaultTree := cfg.DefaultTree
		if defaultTree == "" {
			defaultTree = id.DefaultTreeID + " (built-in)"
		}
		fmt.Fprintf(w, "Default tree: %s\n", defaultTree)
		fmt.Fprintf(w, "Notify: %s\n", cfg.NotifyMode())
		if cfg.NotifyMode() == config.ModeRedis {
			fmt.Fprintf(w, "Redis: %s (channel %s)\n", cfg.Notify.RedisURL, cfg.Channel())
		}
		if cfg.HTTP.Addr != "" {
			fmt.Fprintf(w, "HTTP: %s\n", cfg.HTTP.Addr)
		}
		fmt.Fprintf(w, "Request timeout: %s\n", cfg.RequestTimeout())
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print config.yaml with environment overrides applied",
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

var configSetDefaultCmd = &cobra.Command{
	Use:   "set-default <id>",
	Short: "Set the tree used when no id is given",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !id.Valid(args[0]) {
			return fmt.Errorf("invalid tree id %q", args[0])
		}
		return updateConfig(cmd, func(c *config.Config) {
			c.DefaultTree = args[0]
		}, "Default tree set to "+args[0])
	},
}

var configSetNotifyCmd = &cobra.Command{
	Use:       "set-notify <local|redis|none>",
	Short:     "Choose how writes are announced to other processes",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{config.ModeLocal, config.ModeRedis, config.ModeNone},
	RunE: func(cmd *cobra.Command, args []string) error {
		redisURL, _ := cmd.Flags().GetString("redis-url")
		watch, _ := cmd.Flags().GetBool("watch")
		return updateConfig(cmd, func(c *config.Config) {
			c.Notify.Mode = args[0]
			if redisURL != "" {
				c.Notify.RedisURL = redisURL
			}
			if cmd.Flags().Changed("watch") {
				c.Notify.Watch = watch
			}
		}, "Notify mode set to "+args[0])
	},
}

// updateConfig applies change to the file contents, not the environment
// overridden cfg, so env values never leak into config.yaml.
func updateConfig(cmd *cobra.Command, change func(*config.Config), done string) error {
	onDisk, err := config.Load(dataDir)
	if err != nil {
		return err
	}
	change(onDisk)
	if err := onDisk.Validate(); err != nil {
		return err
	}
	if err := config.Save(dataDir, onDisk); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}
	change(cfg)
	fmt.Fprintln(cmd.OutOrStdout(), done)
	return nil
}

func init() {
	configSetNotifyCmd.Flags().String("redis-url", "", "redis URL for redis mode")
	configSetNotifyCmd.Flags().Bool("watch", false, "refresh listings from file changes while serving")

	configCmd.AddCommand(configStatusCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetDefaultCmd)
	configCmd.AddCommand(configSetNotifyCmd)
	rootCmd.AddCommand(configCmd)
}
