package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/poolstress/internal/stress"
)

// Exit codes.
const (
	ExitOK          = 0
	ExitUsage       = 1
	ExitFatal       = 2
	ExitInterrupted = 130
)

// Command defines a CLI command with unified help generation.
type Command struct {
	// Flags defines command flags.
	Flags *flag.FlagSet

	// Usage is the freeform usage string shown after the program name.
	Usage string

	// Short is a one-line description.
	Short string

	// Long is the full description shown in help. If empty, Short is used.
	Long string

	// Exec runs the command after flags are parsed.
	Exec func(ctx context.Context, o *IO, args []string) error
}

// PrintHelp prints the full help output.
func (c *Command) PrintHelp(o *IO) {
	o.Println("Usage:", c.Usage)
	o.Println()

	desc := c.Long
	if desc == "" {
		desc = c.Short
	}

	o.Println(desc)

	if c.Flags != nil && c.Flags.HasFlags() {
		o.Println()
		o.Println("Flags:")

		var buf strings.Builder
		c.Flags.SetOutput(&buf)
		c.Flags.PrintDefaults()
		o.Printf("%s", buf.String())
	}
}

// Run parses flags and executes the command. Returns the exit code.
// Handles error printing internally for consistent output ordering.
func (c *Command) Run(ctx context.Context, o *IO, args []string) int {
	c.Flags.SetOutput(&strings.Builder{}) // discard pflag output

	err := c.Flags.Parse(args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			c.PrintHelp(o)

			return ExitOK
		}

		o.ErrPrintln("error:", err)

		return ExitUsage
	}

	if c.Flags.NArg() > 0 {
		o.ErrPrintln("error:", fmt.Errorf("%w: %s", errUnexpectedArgs, strings.Join(c.Flags.Args(), " ")))

		return ExitUsage
	}

	err = c.Exec(ctx, o, c.Flags.Args())

	code := exitCode(err)

	switch code {
	case ExitOK:
	case ExitInterrupted:
		o.ErrPrintln("interrupted:", err)
	case ExitFatal:
		o.ErrPrintln("fatal:", err)
	default:
		o.ErrPrintln("error:", err)
	}

	return code
}

var errUnexpectedArgs = errors.New("unexpected arguments")

func exitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case stress.IsInterrupted(err):
		return ExitInterrupted
	case errors.Is(err, stress.ErrFatal):
		return ExitFatal
	default:
		return ExitUsage
	}
}
