package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/deploymenttheory/go-flash-composer/internal/config"
	"github.com/deploymenttheory/go-flash-composer/internal/datasource"
	"github.com/deploymenttheory/go-flash-composer/pkg/tooling"
)

var headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
var cellStyle = lipgloss.NewStyle().Padding(0, 1)

var buildCmd = &cobra.Command{
	Use:   "build [BLOCK@]FILE...",
	Short: "Build blocks into an Intel HEX or S-Record image",
	Long: `Build assembles the named blocks, or every block of a bare layout FILE,
and writes one combined image (stdout unless -o is given) or one image per
block with --split.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runBuild,
}

func init() {
	f := buildCmd.Flags()
	f.StringP("output", "o", "", "output file (default stdout)")
	f.String("output-dir", "", "directory for output files")
	f.String("format", "", "output format: hex or srec")
	f.Int("record-width", 0, "data bytes per record (1-64)")
	f.Bool("split", false, "write one image per block")
	f.Bool("strict", false, "reject lossy value conversions")
	f.String("json", "", "JSON data source, a .json file or inline document")
	f.String("http", "", "HTTP data source request, a .json file or inline document")
	f.String("versions", "", "version priority for named values, e.g. Debug/Default")
	f.String("export-json", "", "write the used values to this JSON file")
	f.Bool("stats", false, "show detailed build statistics")
	f.String("compress", "", "compress images: gzip, bzip2 or xz")
	f.String("digest", "", "artifact digest: sha256 or blake2b")
	f.String("manifest", "", "write a JSON manifest of the written images")
	f.Int("parallelism", 0, "maximum blocks built at once (0 = all)")
}

func runBuild(cmd *cobra.Command, args []string) error {
	req := tooling.RequestFromConfig(config.Instance)
	req.Inputs = args
	req.Output, _ = cmd.Flags().GetString("output")
	req.Manifest, _ = cmd.Flags().GetString("manifest")
	req.ExportJSON, _ = cmd.Flags().GetString("export-json")
	req.Stdout = cmd.OutOrStdout()
	if cmd.Flags().Changed("versions") {
		versions, _ := cmd.Flags().GetString("versions")
		req.Versions = datasource.ParseVersions(versions)
	}

	result, err := tooling.Build(cmd.Context(), req)
	if err != nil {
		return err
	}

	if quiet, _ := cmd.Flags().GetBool("quiet"); quiet {
		return nil
	}
	// stdout may carry the image, so the summary goes to stderr
	out := cmd.ErrOrStderr()
	if stats, _ := cmd.Flags().GetBool("stats"); stats {
		printDetailed(out, result)
	} else {
		printSummary(out, result)
	}
	return nil
}

func printSummary(w io.Writer, r *tooling.BuildResult) {
	fmt.Fprintf(w, "Built %d blocks in %s (%.1f%% efficiency)\n",
		len(r.Blocks), formatDuration(r.Duration), r.Efficiency())
}

func printDetailed(w io.Writer, r *tooling.BuildResult) {
	summary := table.New().
		Border(lipgloss.NormalBorder()).
		StyleFunc(styleCell).
		Headers("Build Summary", "").
		Row("Build Time", formatDuration(r.Duration)).
		Row("Blocks Processed", fmt.Sprint(len(r.Blocks))).
		Row("Total Allocated", formatBytes(r.TotalAllocated())).
		Row("Total Used", formatBytes(r.TotalUsed())).
		Row("Space Efficiency", fmt.Sprintf("%.1f%%", r.Efficiency()))
	fmt.Fprintln(w, summary.Render())
	fmt.Fprintln(w)

	detail := table.New().
		Border(lipgloss.NormalBorder()).
		StyleFunc(styleCell).
		Headers("Block", "Address Range", "Used/Alloc", "Efficiency", "CRC")
	for _, b := range r.Blocks {
		detail.Row(
			b.Name,
			fmt.Sprintf("0x%08X-0x%08X", b.Start, b.End()-1),
			formatBytes(uint64(b.Used))+"/"+formatBytes(uint64(b.Length)),
			fmt.Sprintf("%.1f%%", b.Efficiency()),
			formatCRC(b),
		)
	}
	fmt.Fprintln(w, detail.Render())

	for _, a := range r.Artifacts {
		fmt.Fprintf(w, "%s  %s  %s\n", a.Path, formatBytes(uint64(a.Size)), a.Digest)
	}
}

// formatCRC prints the CRC with two hex digits per stored byte.
func formatCRC(b tooling.BlockStats) string {
	if !b.HasCRC {
		return "-"
	}
	return fmt.Sprintf("0x%0*X", b.CRCBytes*2, b.CRC)
}

func styleCell(row, col int) lipgloss.Style {
	if row == table.HeaderRow {
		return headerStyle
	}
	return cellStyle
}

func formatBytes(n uint64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MiB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KiB", float64(n)/(1<<10))
	}
	return fmt.Sprintf("%d B", n)
}

func formatDuration(d time.Duration) string {
	switch {
	case d >= time.Second:
		return d.Round(time.Millisecond).String()
	case d >= time.Millisecond:
		return d.Round(10 * time.Microsecond).String()
	}
	return d.Round(time.Microsecond).String()
}
