// Command avcat is a thin command-line front end over the connection
// pipeline (spec §6.4: out of core scope, specified only for
// completeness). It copies wire packets from one or more input addresses
// to an output address, optionally mirroring the same stream to a second
// destination.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &avcatOptions{}

	cmd := &cobra.Command{
		Use:   "avcat",
		Short: "Copy AVTransport wire packets between addresses",
		Example: "  avcat -i udp://127.0.0.1:6000 -o file:///tmp/out.avt\n" +
			"  avcat -i udp://0.0.0.0:6000 -i file:///tmp/in.avt -o udp://10.0.0.2:6000 -m file:///tmp/mirror.avt",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts)
		},
	}

	flags := cmd.Flags()
	flags.StringArrayVarP(&opts.inputs, "in", "i", nil, "input address (repeatable)")
	flags.StringVarP(&opts.output, "out", "o", "", "output address")
	flags.BoolVarP(&opts.unround, "unround", "u", false, "pass through timestamps without rounding")
	flags.StringVarP(&opts.mirror, "mirror", "m", "", "mirror address, receives the same packets as the output")
	cmd.MarkFlagRequired("out")

	return cmd
}
