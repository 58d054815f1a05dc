package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	errs "github.com/deploymenttheory/go-flash-composer/internal/common/errors"
	"github.com/deploymenttheory/go-flash-composer/pkg/tooling"
)

var verifyCmd = &cobra.Command{
	Use:   "verify FILE...",
	Short: "Decode images and check their record checksums",
	Long: `Verify decodes Intel HEX or S-Record images, optionally gzip, bzip2 or xz
compressed, checks every record checksum and prints the address ranges found.
With --expect the file digest must match as well.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		expect, _ := cmd.Flags().GetString("expect")
		if expect != "" && len(args) > 1 {
			return fmt.Errorf("%w: --expect checks a single file, got %d", errs.ErrInvalidArgument, len(args))
		}

		out := cmd.OutOrStdout()
		for _, path := range args {
			result, err := tooling.Verify(path, expect)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s: %s, %d bytes in %d segments, %s\n",
				result.Path, result.Format, result.TotalBytes, len(result.Segments), result.Digest)
			for _, s := range result.Segments {
				fmt.Fprintf(out, "  0x%08X-0x%08X  %d bytes\n", s.Address, s.Address+uint64(s.Length)-1, s.Length)
			}
		}
		return nil
	},
}

func init() {
	verifyCmd.Flags().String("expect", "", "expected digest, algo:hex or sha256 hex")
}
