// Package cli implements the poolstress command line.
package cli

import (
	"context"
	"errors"
	"io"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/poolstress/internal/config"
	"github.com/calvinalkan/poolstress/internal/stress"
)

const longHelp = `Runs N workers that each create a persistent pool in a pre-allocated
file, wait at a shared barrier until every worker has created its pool,
then open and close their own pool a fixed number of times concurrently
and finally remove the file.

Failures of the pool backend are reported per worker and do not change the
exit code. Failures of the environment (a backing file cannot be created,
allocated or removed) abort the run.

Exit codes: 0 finished, 1 usage or config error, 2 fatal, 130 interrupted.

Config files (JSONC, lowest precedence first):
  $XDG_CONFIG_HOME/poolstress/config.json
  .poolstress.json in the working directory, or --config`

// Run is the main entry point. Returns exit code.
//
// The run is cancelled when a signal arrives on sigCh; sigCh may be nil.
func Run(_ io.Reader, out io.Writer, errOut io.Writer, args []string, env map[string]string, sigCh <-chan os.Signal) int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if sigCh != nil {
		go func() {
			select {
			case <-sigCh:
				cancel()
			case <-ctx.Done():
			}
		}()
	}

	o := NewIO(out, errOut)
	cmd := newStressCmd(env)

	if len(args) > 0 {
		args = args[1:]
	}

	return cmd.Run(ctx, o, args)
}

type stressFlags struct {
	workDir    string
	configPath string
	prefix     string
	workers    int
	cycles     int
	extent     int64
	layout     string
	mode       string
	ids        string
	sweep      bool
	report     string
	metrics    string
	quiet      bool
	verbose    bool
}

func newStressCmd(env map[string]string) *Command {
	var f stressFlags

	fs := flag.NewFlagSet("poolstress", flag.ContinueOnError)
	fs.StringVarP(&f.workDir, "cwd", "C", "", "Run as if started in `dir`")
	fs.StringVarP(&f.configPath, "config", "c", "", "Use config `file` instead of .poolstress.json")
	fs.StringVar(&f.prefix, "prefix", "", "Pool path `prefix` (default $TMPDIR/pmemobj_mt_safety)")
	fs.IntVarP(&f.workers, "workers", "w", stress.DefaultWorkers, "Number of concurrent workers")
	fs.IntVarP(&f.cycles, "cycles", "n", stress.DefaultCycles, "Open/close cycles per worker")
	fs.Int64Var(&f.extent, "extent", stress.DefaultExtent, "Bytes pre-allocated per pool file")
	fs.StringVar(&f.layout, "layout", "", "Pool layout name")
	fs.StringVar(&f.mode, "mode", "0644", "Pool file `mode` (octal)")
	fs.StringVar(&f.ids, "ids", stress.DefaultIDs, "Worker id scheme: seq or pid")
	fs.BoolVar(&f.sweep, "sweep", false, "Destroy stale <prefix>-* pools before starting")
	fs.StringVar(&f.report, "report", "", "Write a JSON report to `file`")
	fs.StringVar(&f.metrics, "metrics", "", "Write Prometheus metrics to `file`")
	fs.BoolVarP(&f.quiet, "quiet", "q", false, "Only print the summary")
	fs.BoolVarP(&f.verbose, "verbose", "v", false, "Print every worker transition")

	return &Command{
		Flags: fs,
		Usage: "poolstress [flags]",
		Short: "Stress concurrent pool create/open/close/destroy",
		Long:  longHelp,
		Exec: func(ctx context.Context, o *IO, _ []string) error {
			cfg, err := config.Load(config.LoadInput{
				WorkDir:    f.workDir,
				ConfigPath: f.configPath,
				Env:        env,
				Overrides:  overrides(fs, &f),
			})
			if err != nil {
				return err
			}

			return execStress(ctx, o, cfg, f.quiet)
		},
	}
}

// overrides returns the flags explicitly set on the command line.
func overrides(fs *flag.FlagSet, f *stressFlags) config.Values {
	var v config.Values

	if fs.Changed("prefix") {
		v.Prefix = &f.prefix
	}

	if fs.Changed("workers") {
		v.Workers = &f.workers
	}

	if fs.Changed("cycles") {
		v.Cycles = &f.cycles
	}

	if fs.Changed("extent") {
		v.Extent = &f.extent
	}

	if fs.Changed("layout") {
		v.Layout = &f.layout
	}

	if fs.Changed("mode") {
		v.Mode = &f.mode
	}

	if fs.Changed("ids") {
		v.IDs = &f.ids
	}

	if fs.Changed("sweep") {
		v.Sweep = &f.sweep
	}

	if fs.Changed("report") {
		v.Report = &f.report
	}

	if fs.Changed("metrics") {
		v.Metrics = &f.metrics
	}

	if fs.Changed("verbose") {
		v.Verbose = &f.verbose
	}

	return v
}

func execStress(ctx context.Context, o *IO, cfg config.Config, quiet bool) error {
	observers := stress.Observers{}

	if !quiet {
		observers = append(observers, stress.NewNarrator(o.Out(), cfg.Verbose))
	}

	var metrics *stress.Metrics
	if cfg.Metrics != "" {
		metrics = stress.NewMetrics()
		observers = append(observers, metrics)
	}

	h, err := stress.New(cfg.Run, stress.WithObserver(observers))
	if err != nil {
		return err
	}

	report, runErr := h.Run(ctx)

	o.Println(report.Summary())

	for _, res := range report.Failures() {
		o.Warn("worker %s: %s: %v", res.ID, res.Path, res.Failure)
	}

	o.Finish()

	var writeErrs []error

	if cfg.Report != "" {
		if err := stress.WriteReport(cfg.Report, report); err != nil {
			writeErrs = append(writeErrs, err)
		}
	}

	if metrics != nil {
		if err := metrics.WriteTextfile(cfg.Metrics); err != nil {
			writeErrs = append(writeErrs, err)
		}
	}

	return errors.Join(append([]error{runErr}, writeErrs...)...)
}
