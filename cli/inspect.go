package cli

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"m3u8conv/playlist"
)

func newInspectCommand() *cobra.Command {
	var baseURL string

	cmd := &cobra.Command{
		Use:   "inspect <playlist.m3u8>",
		Short: "Classify a playlist and show the rendition a conversion would use",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read playlist: %w", err)
			}
			return writeInspection(cmd.OutOrStdout(), string(data), baseURL)
		},
	}

	cmd.Flags().StringVar(&baseURL, "base-url", "", "Resolve relative rendition locators against this URL")
	return cmd
}

func writeInspection(out io.Writer, raw, baseURL string) error {
	doc, err := playlist.Inspect(raw)
	if err != nil {
		return err
	}

	if !doc.IsMaster() {
		fmt.Fprintln(out, "Kind: media")
		return nil
	}

	best, _ := doc.Best()
	rows := make([][]string, 0, len(doc.Renditions))
	for _, r := range doc.Renditions {
		marker := ""
		if r == best {
			marker = "*"
		}
		rows = append(rows, []string{
			marker,
			strconv.Itoa(r.Bandwidth),
			r.Resolution,
			playlist.Resolve(baseURL, r.Locator),
		})
	}

	fmt.Fprintf(out, "Kind: master (%d renditions)\n", len(doc.Renditions))
	fmt.Fprintln(out, renderTable(
		[]string{"", "Bandwidth", "Resolution", "Locator"},
		rows,
		[]columnAlignment{alignLeft, alignRight, alignLeft, alignLeft},
	))
	return nil
}
