package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tidebell/tidebell/am"
	"github.com/tidebell/tidebell/errors"
)

// ConfigCmd prints the resolved configuration
var ConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the resolved configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := am.Load()
		if err != nil {
			return errors.Wrap(err, "failed to load configuration")
		}

		fmt.Printf("database.path:          %s\n", cfg.Database.Path)
		fmt.Printf("server.port:            %d\n", cfg.Server.Port)
		fmt.Printf("server.allowed_origins: %v\n", cfg.Server.AllowedOrigins)
		fmt.Printf("scheduler.workers:      %d\n", cfg.Scheduler.Workers)
		fmt.Printf("scheduler.queue_size:   %d\n", cfg.Scheduler.QueueSize)
		fmt.Printf("redis.enabled:          %t\n", cfg.Redis.Enabled)
		fmt.Printf("redis.addr:             %s\n", cfg.Redis.Addr)
		fmt.Printf("instance.id:            %s\n", cfg.Instance.ID)
		return nil
	},
}
