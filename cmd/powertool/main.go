// cmd/powertool/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/edaniels/golog"

	"powertool-go/errcode"
	"powertool-go/services/config"
	"powertool-go/services/session"
)

// ---------- Commands ----------

type command struct {
	usage string
	run   func(ctx context.Context, s *session.Session, args []string) error
}

var commands map[string]command

func init() {
	commands = map[string]command{
		"read":   {"read [-rail R] [-cmd NAME]          one telemetry read", runRead},
		"status": {"status [-rail R] [-all]             decode status registers", runStatus},
		"set":    {"set -rail R -v VOLTS [-linear16]     write VOUT_COMMAND and verify", runSet},
		"clear":  {"clear [-rail R]                     CLEAR_FAULTS", runClear},
		"reg":    {"reg -r REG [-rail R] [-width N] [-write V]   raw register access", runReg},
		"ocwarn": {"ocwarn [-rail R] [-set AMPS]         IOUT_OC_WARN_LIMIT", runOCWarn},
		"phases": {"phases [-loop1 N -loop2 N]           phase configuration and currents", runPhases},
		"tune":   {"tune [-rail R] [-freq N] [-loadline MOHM] [-voffset MV]", runTune},
		"log":    {"log [-rail R,...] [-interval D] [-duration D]   continuous telemetry", runLog},
		"logcmd": {"logcmd -cmd NAME [-rail R] [-interval D] [-duration D]", runLogCmd},
		"test":   {"test -rail R (-targets V1,V2,... | -from V -to V [-steps N] [-triangle]) [-interval D]   setpoint sweep", runTest},
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "usage: powertool [-config FILE] [-profile %s] [-v] COMMAND [flags]\n\ncommands:\n",
		strings.Join(config.Profiles(), "|"))
	names := make([]string, 0, len(commands))
	for n := range commands {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		fmt.Fprintf(os.Stderr, "  %s\n", commands[n].usage)
	}
}

func main() {
	cfgPath := flag.String("config", "", "YAML file overlaid on the profile")
	profile := flag.String("profile", config.TransportAdapter, "transport profile")
	verbose := flag.Bool("v", false, "trace every bus transaction")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}
	cmd, ok := commands[flag.Arg(0)]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n", flag.Arg(0))
		usage()
		os.Exit(2)
	}

	log := golog.NewDevelopmentLogger("powertool")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, log, *cfgPath, *profile, *verbose, cmd, flag.Args()[1:]); err != nil {
		log.Errorw("failed", "command", flag.Arg(0), "code", errcode.Of(err), "error", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, log golog.Logger, path, profile string, verbose bool, cmd command, args []string) error {
	cfg, err := config.Load(path, profile)
	if err != nil {
		return errcode.New(errcode.InvalidParams, "config", "", err)
	}
	if verbose {
		cfg.Transport.Trace = true
	}
	s, err := session.Open(cfg, log)
	if err != nil {
		return err
	}
	defer s.Close()
	return cmd.run(ctx, s, args)
}

// ---------- Flag helpers ----------

func newFlags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.Usage = func() { fmt.Fprintf(os.Stderr, "usage: powertool %s\n", commands[name].usage); fs.PrintDefaults() }
	return fs
}

func parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return errcode.New(errcode.InvalidParams, fs.Name(), "", err)
	}
	if fs.NArg() > 0 {
		return errcode.New(errcode.InvalidParams, fs.Name(), fmt.Sprintf("unexpected arguments %v", fs.Args()), nil)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
