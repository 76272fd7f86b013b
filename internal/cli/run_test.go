package cli_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/calvinalkan/poolstress/internal/cli"
	"github.com/calvinalkan/poolstress/pkg/pmpool"
)

var smallRun = []string{"--extent", strconv.Itoa(pmpool.MinPoolSize)}

func args(extra ...string) []string {
	return append(append([]string{}, smallRun...), extra...)
}

func Test_Run_Prints_Help_When_Help_Flag_Given(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stdout := c.MustRun("--help")

	cli.AssertContains(t, stdout, "Usage: poolstress [flags]")
	cli.AssertContains(t, stdout, "--workers")
	cli.AssertContains(t, stdout, "Exit codes")
}

func Test_Run_Creates_Cycles_And_Cleans_Up_When_Using_Defaults(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stdout := c.MustRun(args()...)

	cli.AssertContains(t, stdout, "1: creating "+filepath.Join(c.Dir, "pmemobj_mt_safety-1"))
	cli.AssertContains(t, stdout, "32: waiting for barrier")
	cli.AssertContains(t, stdout, "32 workers, 32 pools created, 0 create failures, 320/320 cycles")

	if files := c.PoolFiles(); len(files) != 0 {
		t.Fatalf("pool files left behind: %v", files)
	}
}

func Test_Run_Prints_Only_Summary_When_Quiet(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stdout := c.MustRun(args("-q", "-w", "3", "-n", "2")...)

	cli.AssertNotContains(t, stdout, "creating")

	if lines := strings.Split(stdout, "\n"); len(lines) != 1 {
		t.Fatalf("quiet output has %d lines, want 1:\n%s", len(lines), stdout)
	}

	cli.AssertContains(t, stdout, "3 workers, 3 pools created")
}

func Test_Run_Exits_Zero_And_Warns_When_Backend_Create_Fails(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)

	// A pool already living at worker 2's path makes its create fail.
	stale := filepath.Join(c.Dir, "pmemobj_mt_safety-2")

	p, err := pmpool.Create(stale, "", pmpool.MinPoolSize, 0o600)
	if err != nil {
		t.Fatalf("create stale pool: %v", err)
	}

	if err := p.Close(); err != nil {
		t.Fatalf("close stale pool: %v", err)
	}

	stdout, stderr, code := c.Run(args("-w", "4", "-n", "3")...)
	if code != cli.ExitOK {
		t.Fatalf("exit code=%d, want 0\nstderr: %s", code, stderr)
	}

	cli.AssertContains(t, stdout, "2: failed to create "+stale+": errno 17")
	cli.AssertContains(t, stdout, "2: waiting for barrier")
	cli.AssertContains(t, stdout, "4 workers, 3 pools created, 1 create failures, 9/9 cycles")
	cli.AssertContains(t, stderr, "warning: worker 2: "+stale)

	if files := c.PoolFiles(); len(files) != 0 {
		t.Fatalf("pool files left behind: %v", files)
	}
}

func Test_Run_Removes_Stale_Pools_When_Sweep_Is_Set(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stale := filepath.Join(c.Dir, "pmemobj_mt_safety-99")

	p, err := pmpool.Create(stale, "", pmpool.MinPoolSize, 0o600)
	if err != nil {
		t.Fatalf("create stale pool: %v", err)
	}

	_ = p.Close()

	stdout := c.MustRun(args("--sweep", "-w", "2", "-n", "1")...)
	cli.AssertContains(t, stdout, "swept stale pool "+stale)

	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Fatalf("stale pool still exists: %v", err)
	}
}

func Test_Run_Exits_Zero_When_Sweep_Finds_Report_From_Previous_Run(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	prefix := filepath.Join(c.Dir, "stress")
	flags := args("-q", "-w", "2", "-n", "1", "--sweep", "--prefix", prefix, "--report", prefix+"-report.json")

	c.MustRun(flags...)
	c.MustRun(flags...)

	if _, err := os.Stat(prefix + "-report.json"); err != nil {
		t.Fatalf("report missing after second run: %v", err)
	}
}

func Test_Run_Writes_Report_And_Metrics_When_Paths_Given(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	c.MustRun(args("-q", "-w", "2", "-n", "4", "--report", "out.json", "--metrics", "out.prom")...)

	data, err := os.ReadFile(filepath.Join(c.Dir, "out.json"))
	if err != nil {
		t.Fatalf("read report: %v", err)
	}

	var report struct {
		Totals struct {
			CyclesCompleted int `json:"cycles_completed"`
		} `json:"totals"`
	}

	if err := json.Unmarshal(data, &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}

	if report.Totals.CyclesCompleted != 8 {
		t.Fatalf("cycles_completed=%d, want 8", report.Totals.CyclesCompleted)
	}

	prom, err := os.ReadFile(filepath.Join(c.Dir, "out.prom"))
	if err != nil {
		t.Fatalf("read metrics: %v", err)
	}

	cli.AssertContains(t, string(prom), `poolstress_cycles_total{result="ok"} 8`)
}

func Test_Run_Uses_Project_Config_When_Present(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	c.WriteConfig(`{
		// small run
		"workers": 2,
		"cycles": 1,
		"extent": 8388608,
	}`)

	stdout := c.MustRun("-q")
	cli.AssertContains(t, stdout, "2 workers, 2 pools created, 0 create failures, 2/2 cycles")

	stdout = c.MustRun("-q", "-w", "3")
	cli.AssertContains(t, stdout, "3 workers, 3 pools created")
}

func Test_Run_Exits_One_When_Usage_Or_Config_Is_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		config string
		args   []string
		want   string
	}{
		{name: "UnknownFlag", args: []string{"--bogus"}, want: "unknown flag"},
		{name: "ExtraArgs", args: []string{"run"}, want: "unexpected arguments"},
		{name: "BadIDs", args: []string{"--ids", "tid"}, want: "unknown id scheme"},
		{name: "BadMode", args: []string{"--mode", "rwx"}, want: "mode must be octal"},
		{name: "ExtentBelowMinPoolSize", args: []string{"--extent", "65536"}, want: "extent must be >="},
		{name: "BadConfig", config: `{"workers": "many"}`, want: "invalid config"},
		{name: "MissingConfig", args: []string{"-c", "nope.json"}, want: "config file not found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c := cli.NewCLI(t)
			if tt.config != "" {
				c.WriteConfig(tt.config)
			}

			stderr := c.MustFail(cli.ExitUsage, tt.args...)
			cli.AssertContains(t, stderr, "error:")
			cli.AssertContains(t, stderr, tt.want)
		})
	}
}

func Test_Run_Exits_Two_When_Barrier_Cannot_Be_Created(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stderr := c.MustFail(cli.ExitFatal, args("-w", "0")...)

	cli.AssertContains(t, stderr, "fatal: barrier init")
}

func Test_Run_Reports_Write_Failures_When_Run_Is_Fatal(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	report := filepath.Join(c.Dir, "missing", "report.json")
	stderr := c.MustFail(cli.ExitFatal, args("-q", "-w", "0", "--report", report)...)

	cli.AssertContains(t, stderr, "fatal: barrier init")
	cli.AssertContains(t, stderr, "write report")
}

func Test_Run_Exits_130_When_Interrupted(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)

	sigCh := make(chan os.Signal, 1)
	sigCh <- os.Interrupt

	_, stderr, code := c.RunWithSignal(sigCh, args("-q", "-w", "2", "-n", "1000000")...)
	if code != cli.ExitInterrupted {
		t.Fatalf("exit code=%d, want 130\nstderr: %s", code, stderr)
	}

	cli.AssertContains(t, stderr, "interrupted:")

	if files := c.PoolFiles(); len(files) != 0 {
		t.Fatalf("pool files left behind: %v", files)
	}
}
