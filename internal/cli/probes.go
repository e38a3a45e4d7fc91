package cli

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/astronomer/astronomer/internal/chart"
	apperrors "github.com/astronomer/astronomer/internal/errors"
	"github.com/astronomer/astronomer/internal/probes"
)

// ProbeFiles maps probe types to their golden file names.
var ProbeFiles = map[string]string{
	probes.Liveness:  "default_container_liveness_probes.yaml",
	probes.Readiness: "default_container_readiness_probes.yaml",
}

func newProbesCmd(a *app) *cobra.Command {
	var (
		vf       valueFlags
		writeDir string
		checkDir string
	)
	cmd := &cobra.Command{
		Use:   "probes",
		Short: "Print, write or check the default container probes of the chart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if writeDir != "" && checkDir != "" {
				return apperrors.New(apperrors.ErrCodeInvalidRequest, "--write and --check are mutually exclusive")
			}
			user, err := vf.load()
			if err != nil {
				return err
			}
			r, err := a.renderer()
			if err != nil {
				return err
			}
			opts, err := a.renderOptions(user)
			if err != nil {
				return err
			}
			objs, err := chart.Render(cmd.Context(), r, opts)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			drift := 0
			for _, probeType := range []string{probes.Liveness, probes.Readiness} {
				found := probes.Extract(objs, probeType, opts.Name)
				switch {
				case writeDir != "":
					var buf bytes.Buffer
					if err := probes.Write(&buf, found); err != nil {
						return err
					}
					path := filepath.Join(writeDir, ProbeFiles[probeType])
					if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
						return err
					}
					a.log.Info("wrote probes", "path", path, "containers", len(found))
				case checkDir != "":
					diff, err := probes.Compare(filepath.Join(checkDir, ProbeFiles[probeType]), found)
					if err != nil {
						return err
					}
					if diff != "" {
						drift++
						fmt.Fprint(out, diff)
					}
				default:
					fmt.Fprintf(out, "# %s\n", probeType)
					if err := probes.Write(out, found); err != nil {
						return err
					}
				}
			}
			if drift > 0 {
				return apperrors.New(apperrors.ErrCodeInvalidRequest,
					fmt.Sprintf("%d probe files differ from the rendered chart, rerun with --write", drift))
			}
			return nil
		},
	}
	vf.register(cmd)
	cmd.Flags().StringVar(&writeDir, "write", "", "write golden probe files into this directory")
	cmd.Flags().StringVar(&checkDir, "check", "", "compare against golden probe files in this directory")
	return cmd
}
