package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/DevHatRo/clamav-gateway-go/gateway"
)

// errInfected is returned by the scan command when clamd found something.
var errInfected = errors.New("infected")

func newScanCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "scan [FILE|-]",
		Short: "Stream a file or stdin to clamd and print the JSON verdict",
		Long: `Stream a local file, or stdin when FILE is omitted or "-", to clamd and print
the verdict in the same JSON form POST /scan answers with. The exit status is 1
when something was found.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := "-"
			if len(args) == 1 {
				name = args[0]
			}
			return a.scan(cmd, name)
		},
	}
}

func (a *app) scan(cmd *cobra.Command, name string) error {
	client, err := a.newClient()
	if err != nil {
		return err
	}

	var r io.Reader = cmd.InOrStdin()
	if name != "-" {
		f, err := os.Open(name)
		if err != nil {
			return fmt.Errorf("open %s: %w", name, err)
		}
		defer f.Close()
		r = f
	}

	start := time.Now()
	verdict, err := client.ScanReader(cmd.Context(), r)
	if err != nil {
		return fmt.Errorf("scan %s: %w", name, err)
	}

	a.logger.Debug("scan completed",
		"source", name,
		"malignant", verdict.IsMalignant(),
		"duration_ms", time.Since(start).Milliseconds())

	if err := json.NewEncoder(cmd.OutOrStdout()).Encode(gateway.NewScanResponse(*verdict)); err != nil {
		return fmt.Errorf("write verdict: %w", err)
	}
	if verdict.IsMalignant() {
		return errInfected
	}
	return nil
}
