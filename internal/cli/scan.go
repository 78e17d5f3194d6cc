package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sentra-ai/sentra/internal/pipeline"
)

var scanMode string

func init() {
	rootCmd.AddCommand(scanCmd)
	scanCmd.Flags().StringVar(&scanMode, "mode", "", "Scan mode: fast | balanced | thorough")
}

var scanCmd = &cobra.Command{
	Use:   "scan [text]",
	Short: "Scan one text and print the decision",
	Long:  "Runs a single text through the pipeline and prints the result as JSON.\nReads from stdin when no argument is given. Exits 2 on a block decision.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runScan,
}

func runScan(cmd *cobra.Command, args []string) error {
	var text string
	if len(args) == 1 {
		text = args[0]
	} else {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		text = strings.TrimRight(string(data), "\n")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	rt, err := buildRuntime(ctx, cfgPath, false)
	if err != nil {
		return err
	}
	defer rt.Close(ctx)

	res, err := rt.orch.Scan(ctx, pipeline.Request{
		Text:      text,
		Mode:      pipeline.Mode(scanMode),
		L1Enabled: true,
		L2Enabled: true,
	})
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	fmt.Println(string(out))

	if res.Decision.ShouldBlock {
		os.Exit(2)
	}
	return nil
}
