package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/arma3-tools/pbocache/pkg/logger"
	"github.com/arma3-tools/pbocache/pkg/scanner"
)

var (
	listExtensions []string
)

func ListCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   "list [KIND]",
		Short: "List cached output files",
		Long: `Enumerates all currently cached output paths for KIND, optionally
narrowed by extension. Downstream analyzers use this as their file
discovery entry point.`,

		Args: cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			initCore()

			log := logger.GetLogger("list")

			kind, ok := scanner.ParseKind(args[0])
			if !ok {
				log.Fatalf("Unknown archive kind: %q", args[0])
			}

			st := openStore(log)
			mgr := newManager(log, st)

			outputs := mgr.Outputs(kind, listExtensions)
			for _, out := range outputs {
				fmt.Println(out)
			}

			log.Debugf("Listed %d cached outputs", len(outputs))
		},
	}

	command.Flags().StringSliceVarP(&listExtensions, "extensions", "e", nil, "Only list outputs with these extensions")

	return command
}
