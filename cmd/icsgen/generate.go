package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"icsgen/internal/download"
	"icsgen/internal/model"
)

// generateCmd represents the generate command
var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Writes an .ics file for one event",
	Long: `Builds the invite from flags and writes it to --out as <summary>.ics.
With --out - the document is written to stdout instead.`,
	Example: `  icsgen generate --summary "Team Sync" --zoom-link https://zoom.us/j/123 \
    --time-zone PST --start 2024-06-10T09:00 --end 2024-06-10T10:00 --out .`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		svc, err := newService(cfg)
		if err != nil {
			return err
		}

		flags := cmd.Flags()
		in := model.EventInput{}
		in.Summary, _ = flags.GetString("summary")
		in.Location, _ = flags.GetString("location")
		in.ZoomLink, _ = flags.GetString("zoom-link")
		in.TimeZone, _ = flags.GetString("time-zone")
		in.StartTime, _ = flags.GetString("start")
		in.EndTime, _ = flags.GetString("end")
		out, _ := flags.GetString("out")

		var primary download.Saver
		if out == "-" {
			primary = download.WriterSaver{W: cmd.OutOrStdout()}
		} else {
			primary = download.NewFileSaver(out)
		}

		ev, err := svc.GenerateAndDeliver(cmd.Context(), in, primary)
		if err != nil {
			return err
		}

		if fs, ok := primary.(*download.FileSaver); ok {
			path, _ := fs.Path(ev.FileName)
			fmt.Fprintln(cmd.ErrOrStderr(), path)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(generateCmd)

	generateCmd.Flags().StringP("summary", "s", "", "Event title (required)")
	generateCmd.Flags().String("location", "", "Event location (defaults to config default_location)")
	generateCmd.Flags().StringP("zoom-link", "z", "", "Meeting URL (required)")
	generateCmd.Flags().StringP("time-zone", "t", "", "PST, CST or EST (defaults to config default_timezone)")
	generateCmd.Flags().String("start", "", "Local start, e.g. 2024-06-10T09:00 (required)")
	generateCmd.Flags().String("end", "", "Local end, e.g. 2024-06-10T10:00 (required)")
	generateCmd.Flags().StringP("out", "o", ".", "Output directory, or - for stdout")

	generateCmd.MarkFlagRequired("summary")
	generateCmd.MarkFlagRequired("zoom-link")
	generateCmd.MarkFlagRequired("start")
	generateCmd.MarkFlagRequired("end")
}
