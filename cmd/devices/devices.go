package devices

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tphakala/camcore/internal/camera/audio"
)

// Command creates the command that lists audio capture devices.
func Command() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List audio capture devices",
		Long:  "List the audio capture devices usable as the recording audio source (audio.device).",
		RunE: func(cmd *cobra.Command, args []string) error {
			devices, err := audio.ListDevices()
			if err != nil {
				return err
			}

			if len(devices) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no audio capture devices found")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "INDEX\tNAME\tDEFAULT\tID")
			for _, d := range devices {
				def := ""
				if d.IsDefault {
					def = "yes"
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", d.Index, d.Name, def, d.ID)
			}
			return w.Flush()
		},
	}
}
