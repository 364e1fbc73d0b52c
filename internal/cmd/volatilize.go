package cmd

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/labflow/flowctl/internal/cmdutil"
	"github.com/labflow/flowctl/internal/util"
	"github.com/labflow/flowctl/internal/volatility"
)

func newVolatilizeCmd(helper *cmdutil.Helper) *cobra.Command {
	var srsly bool
	c := &cobra.Command{
		Use:   "volatilize",
		Short: "Report, or replace, reclaimable finished artifacts",
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := helper.GetCmdBase(cmd.Flags())
			if err != nil {
				return &cmdutil.Error{ExitCode: ExitConfigError, Err: err}
			}

			a, err := buildApp(context.Background(), base)
			if err != nil {
				return err
			}
			defer a.Close()

			candidates, err := volatility.Plan(a.idx, a.state.State)
			if err != nil {
				return &cmdutil.Error{ExitCode: ExitExecutionError, Err: err}
			}

			for _, c := range candidates {
				fmt.Printf("%s\t%s\t%s\n", c.ProducerID, c.Path, volatility.HumanizeBytes(c.Size))
			}

			stepTotals := volatility.StepTotals(candidates)
			steps := make([]string, 0, len(stepTotals))
			for step := range stepTotals {
				steps = append(steps, step)
			}
			sort.Strings(steps)
			for _, step := range steps {
				fmt.Printf("  %s: %s\n", step, volatility.HumanizeBytes(stepTotals[step]))
			}
			fmt.Printf("total reclaimable: %s\n", volatility.HumanizeBytes(volatility.TotalBytes(candidates)))

			if !srsly {
				base.LogInfo("dry run; pass --srsly to replace artifacts with placeholders")
				return nil
			}

			for _, cand := range candidates {
				hash, err := hashFile(cand.Path)
				if err != nil {
					base.LogWarning("volatilize", err)
					continue
				}
				if err := volatility.Write(cand.Path, volatility.Placeholder{OriginalSize: cand.Size, OriginalHash: hash}); err != nil {
					base.LogWarning("volatilize", err)
				}
			}
			return nil
		},
	}
	c.Flags().BoolVar(&srsly, "srsly", false, "actually replace reclaimable artifacts with placeholders")
	return c
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer util.CloseAndIgnoreError(f)
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
