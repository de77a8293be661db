package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/arma3-tools/pbocache/pkg/config"
	"github.com/arma3-tools/pbocache/pkg/logger"
	"github.com/arma3-tools/pbocache/pkg/notification"
)

func PurgeCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   "purge",
		Short: "Drop cache entries for archives no longer on disk",
		Long: `Removes index records and cached output directories belonging to
archives that have been deleted or moved away from their scan roots.`,

		Args: cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			ctx := cmd.Context()
			start := time.Now()

			initCore()

			log := logger.GetLogger("purge")

			st := openStore(log)
			mgr := newManager(log, st)

			noti := notification.NewDiscordSender(log, config.Config.Notifications)

			removed, err := mgr.Purge(ctx)
			if err != nil {
				log.WithError(err).Fatal("Failed purging cache")
			}

			log.Infof("Purged %d stale cache entries", removed)

			if !noti.CanSend() {
				log.Debug("Notifications disabled, skipping...")
				return
			}

			sendErr := noti.Send(
				"Purge",
				fmt.Sprintf("Purged **%d** cache entries for missing archives", removed),
				time.Since(start),
				nil,
				FlagDryRun,
			)
			if sendErr != nil {
				log.WithError(sendErr).Error("Failed sending notification")
			}
		},
	}

	return command
}
