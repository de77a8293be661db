package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/arma3-tools/pbocache/pkg/logger"
)

func FindSourceCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   "find-source [OUTPUT_PATH]",
		Short: "Trace a cached file back to its source archive",
		Long: `Resolves an extracted file (absolute path under the cache directory,
or a cache-relative path) to the archive it was extracted from.`,

		Args: cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			initCore()

			log := logger.GetLogger("find-source")

			st := openStore(log)
			mgr := newManager(log, st)

			source, ok := mgr.FindSource(args[0])
			if !ok {
				log.Fatalf("No archive found for output: %q", args[0])
			}

			fmt.Println(source)
		},
	}

	return command
}
