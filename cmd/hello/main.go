// Command hello launches a kernel of one group of eight lanes, waits for the
// device to finish and prints the index each lane reported.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/openfluke/gpuhello/gpu"
	"github.com/openfluke/gpuhello/launch"
)

var geometry = launch.Geometry{Groups: 1, Lanes: 8}

type options struct {
	device       string
	preferVendor string
	verbose      bool
}

// openDevice is swapped in tests.
var openDevice = func(opts options, log *zap.Logger) launch.Device {
	switch opts.device {
	case "cpu":
		return launch.NewCPUDevice(log)
	case "gpu":
		dev, err := gpu.Open(gpu.Options{PreferVendor: opts.preferVendor}, log)
		if err != nil {
			return &launch.UnavailableDevice{Reason: err}
		}
		return dev
	default:
		return &launch.UnavailableDevice{Reason: fmt.Errorf("unknown device %q", opts.device)}
	}
}

func newRootCmd(stdout io.Writer) *cobra.Command {
	var opts options
	cmd := &cobra.Command{
		Use:           "hello",
		Short:         "Launch a one-group, eight-lane kernel and print each lane index",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(opts.verbose)
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			defer func() { _ = logger.Sync() }()

			dev := openDevice(opts, logger)
			defer dev.Close()
			return launch.Run(dev, geometry, stdout, logger)
		},
	}
	cmd.Flags().StringVar(&opts.device, "device", "gpu", "device to launch on (gpu or cpu)")
	cmd.Flags().StringVar(&opts.preferVendor, "prefer-vendor", "nvidia", "adapter name or vendor substring to prefer")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")
	return cmd
}

func newLogger(verbose bool) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	if verbose {
		config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	config.OutputPaths = []string{"stderr"}
	config.ErrorOutputPaths = []string{"stderr"}
	return config.Build()
}

// execute runs the command and returns the process exit code.
func execute(args []string, stdout, stderr io.Writer) int {
	cmd := newRootCmd(stdout)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(stderr, "GPU error: %v\n", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(execute(os.Args[1:], os.Stdout, os.Stderr))
}
