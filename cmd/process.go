package cmd

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/arma3-tools/pbocache/pkg/config"
	"github.com/arma3-tools/pbocache/pkg/logger"
	"github.com/arma3-tools/pbocache/pkg/notification"
	"github.com/arma3-tools/pbocache/pkg/scanner"
)

var (
	processExtensions []string
	processForce      bool
)

func ProcessCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   "process [KIND]",
		Short: "Extract changed archives of a kind into the cache",
		Long: `Scans the configured roots for KIND ("game-data" or "mission"),
extracts archives whose content or requested extensions changed since the
last run, and updates the cache index. Unchanged archives are skipped.`,

		Args: cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			ctx := cmd.Context()
			start := time.Now()

			initCore()

			log := logger.GetLogger("process")

			kind, ok := scanner.ParseKind(args[0])
			if !ok {
				log.Fatalf("Unknown archive kind: %q", args[0])
			}

			kc := kindConfig(kind)
			if len(kc.Roots) == 0 {
				log.Fatalf("No scan roots configured for kind: %q", kind)
			}

			extensions := processExtensions
			if len(extensions) == 0 {
				extensions = kc.Extensions
			}

			st := openStore(log)
			mgr := newManager(log, st)

			noti := notification.NewDiscordSender(log, config.Config.Notifications)

			summary, err := mgr.Process(ctx, kc.Roots, kind, extensions, processForce)
			if err != nil {
				log.WithError(err).Fatal("Failed processing archives")
			}

			log.Info("-----")
			log.WithField("extracted_size", humanize.IBytes(summary.Bytes)).
				Infof("Processed archives: %d extracted (%d files), %d skipped, %d failed in %s",
					summary.Succeeded, summary.Files, summary.Skipped, summary.Failed,
					summary.Elapsed.Truncate(time.Millisecond))

			var fields []notification.Field
			for archive, reason := range summary.Failures {
				log.Errorf("Failed archive %q: %s", archive, reason)
				fields = append(fields, noti.BuildField(notification.ActionFailed, notification.BuildOptions{
					Archive: archive,
					Kind:    string(kind),
					Reason:  reason,
				}))
			}

			if !noti.CanSend() {
				log.Debug("Notifications disabled, skipping...")
				return
			}

			sendErr := noti.Send(
				"Process",
				fmt.Sprintf("Extracted **%d** archives (**%d** files, **%s**), skipped **%d**, failed **%d**",
					summary.Succeeded, summary.Files, humanize.IBytes(summary.Bytes),
					summary.Skipped, summary.Failed),
				time.Since(start),
				fields,
				FlagDryRun,
			)
			if sendErr != nil {
				log.WithError(sendErr).Error("Failed sending notification")
			}
		},
	}

	command.Flags().StringSliceVarP(&processExtensions, "extensions", "e", nil, "Override the configured extension filter")
	command.Flags().BoolVarP(&processForce, "force", "f", false, "Re-extract archives even when unchanged")

	return command
}
