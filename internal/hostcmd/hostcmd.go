// Package hostcmd is the CLI scaffolding around cmd/ember. Its commands
// exercise the embedding API (package embed) against a hand-registered
// module; there is deliberately no language front end here, so nothing
// parses or compiles source text.
package hostcmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/mna/mainer"

	"github.com/emberlang/ember/embed"
	"github.com/emberlang/ember/lang/module"
	"github.com/emberlang/ember/lang/proto"
	"github.com/emberlang/ember/lang/vm"
)

const binName = "ember"

var (
	shortUsage = fmt.Sprintf(`
usage: %s [<option>...] <command> [<arg>...]
Run '%[1]s --help' for details.
`, binName)

	longUsage = fmt.Sprintf(`usage: %s [<option>...] <command> [<arg>...]
       %[1]s -h|--help
       %[1]s -v|--version

Embedding-host smoke test for the ember scripting runtime.

The <command> can be one of:
       demo                      Resolve the built-in "demo" module and
                                  call its exported greet function through
                                  the embedding API.

Valid flag options are:
       -h --help                 Show this help and exit.
       -v --version              Print version and exit.
       --dump                    Dump the VM's globals after running the
                                  command (valid for the <demo> command).
`, binName)
)

// Cmd is ember's top-level command dispatcher, structured exactly like
// maincmd.Cmd: mainer.Parser fills its flag-tagged fields, Validate resolves
// args[0] to a method via buildCmds, and Main runs it.
type Cmd struct {
	BuildVersion string
	BuildDate    string

	Help    bool `flag:"h,help"`
	Version bool `flag:"v,version"`

	Dump bool `flag:"dump"`

	args  []string
	flags map[string]bool
	cmdFn func(context.Context, mainer.Stdio, []string) error
}

func (c *Cmd) SetArgs(args []string)          { c.args = args }
func (c *Cmd) SetFlags(flags map[string]bool) { c.flags = flags }

func (c *Cmd) Validate() error {
	if c.Help || c.Version {
		return nil
	}
	if len(c.args) == 0 {
		return errors.New("no command specified")
	}
	cmdName := c.args[0]
	commands := buildCmds(c)
	c.cmdFn = commands[cmdName]
	if c.cmdFn == nil {
		return fmt.Errorf("unknown command: %s", cmdName)
	}
	return nil
}

func printError(stdio mainer.Stdio, err error) error {
	if err != nil {
		fmt.Fprintf(stdio.Stderr, "%s\n", err)
	}
	return err
}

func (c *Cmd) Main(args []string, stdio mainer.Stdio) mainer.ExitCode {
	p := mainer.Parser{
		EnvVars:   false,
		EnvPrefix: binName + "_",
	}
	if err := p.Parse(args, c); err != nil {
		fmt.Fprintf(stdio.Stderr, "invalid arguments: %s\n%s", err, shortUsage)
		return mainer.InvalidArgs
	}

	switch {
	case c.Help:
		fmt.Fprint(stdio.Stdout, longUsage)
		return mainer.Success
	case c.Version:
		fmt.Fprintf(stdio.Stdout, "%s %s %s\n", binName, c.BuildVersion, c.BuildDate)
		return mainer.Success
	}

	ctx := mainer.CancelOnSignal(context.Background(), os.Interrupt)
	if err := c.cmdFn(ctx, stdio, c.args[1:]); err != nil {
		return mainer.Failure
	}
	return mainer.Success
}

// Demo resolves the hand-assembled "demo" module, calls its exported greet
// function with each remaining argument (or "world" if none is given)
// through the embedding API, and prints the results. With --dump, it then
// prints a sorted listing of the VM's globals via vm.DumpGlobals.
func (c *Cmd) Demo(ctx context.Context, stdio mainer.Stdio, args []string) error {
	names := args
	if len(names) == 0 {
		names = []string{"world"}
	}

	v := vm.New(vm.Config{Stdout: stdio.Stdout, Stderr: stdio.Stderr})
	v.SetLoader(func(name string) (*proto.Chunk, error) {
		if name != DemoModuleName {
			return nil, fmt.Errorf("module %q: not found", name)
		}
		return buildDemoChunk(), nil
	})

	exports := v.Modules.Resolve(DemoModuleName)
	if msg, ok := module.IsErrorSentinel(exports); ok {
		return printError(stdio, fmt.Errorf("demo: %s", msg))
	}
	greet, ok := exports["greet"]
	if !ok {
		return printError(stdio, fmt.Errorf("demo: module did not export greet"))
	}

	s := embed.New(v)
	for _, name := range names {
		s.PushValue(greet)
		s.PushString(name)
		if err := s.Call(1, 1); err != nil {
			return printError(stdio, fmt.Errorf("demo: %w", err))
		}
		fmt.Fprintf(stdio.Stdout, "greet(%s) -> %s\n", name, s.ToString(-1))
		s.Pop(1)
	}

	if c.Dump {
		v.DumpGlobals(stdio.Stdout)
	}
	return nil
}

// valid commands are those that take a context.Context, a mainer.Stdio, and
// a slice of strings as input, and return an error as output (same
// reflection-based discovery as maincmd.buildCmds).
func buildCmds(v interface{}) map[string]func(context.Context, mainer.Stdio, []string) error {
	cmds := make(map[string]func(context.Context, mainer.Stdio, []string) error)

	vv := reflect.ValueOf(v)
	vt := vv.Type()
	for i := 0; i < vt.NumMethod(); i++ {
		m := vt.Method(i)
		mt := m.Type

		if mt.NumIn() != 4 || mt.NumOut() != 1 {
			continue
		}
		if rt := mt.Out(0); rt.Kind() != reflect.Interface || rt.Name() != "error" {
			continue
		}
		if p0 := mt.In(0); p0.Kind() != reflect.Ptr || p0.Elem().Name() != "Cmd" {
			continue
		}
		if p1 := mt.In(1); p1.Kind() != reflect.Interface || p1.Name() != "Context" {
			continue
		}
		if p2 := mt.In(2); p2.Kind() != reflect.Struct || p2.Name() != "Stdio" {
			continue
		}
		if p3 := mt.In(3); p3.Kind() != reflect.Slice || p3.Elem().Name() != "string" {
			continue
		}
		cmds[strings.ToLower(m.Name)] = vv.Method(i).Interface().(func(context.Context, mainer.Stdio, []string) error)
	}
	return cmds
}
