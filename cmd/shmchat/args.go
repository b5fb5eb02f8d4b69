package main

import (
	"flag"
	"fmt"
	"io"

	"github.com/codefionn/shmchat/internal/debugserver"
)

type command string

const (
	cmdChat    command = "chat"
	cmdStatus  command = "status"
	cmdDump    command = "dump"
	cmdDestroy command = "destroy"
)

// invocation is the parsed command line.
type invocation struct {
	command    command
	configPath string
	namespace  string
	debugAddr  string
	cpuProfile string
	memProfile string

	dumpPath   string
	dumpFormat string
	force      bool
}

func parseArgs(args []string, output io.Writer) (*invocation, error) {
	inv := &invocation{command: cmdChat}

	fs := flag.NewFlagSet("shmchat", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.StringVar(&inv.configPath, "config", "", "Path to the config file (default: user config dir)")
	fs.StringVar(&inv.namespace, "namespace", "", "Derive the IPC keys from this name instead of the configured keys")
	fs.StringVar(&inv.debugAddr, "debug-addr", "", "Serve state and pprof over HTTP on this address (e.g. 127.0.0.1:6060)")
	fs.StringVar(&inv.cpuProfile, "cpuprofile", "", "Write a CPU profile to this file")
	fs.StringVar(&inv.memProfile, "memprofile", "", "Write a heap profile to this file on exit")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: shmchat [options] [chat|status|dump|destroy] [command options]\n\n")
		fmt.Fprintln(fs.Output(), "Options:")
		fs.PrintDefaults()
		fmt.Fprintln(fs.Output(), "\nCommands:")
		fmt.Fprintln(fs.Output(), "  chat     interactive command loop (default)")
		fmt.Fprintln(fs.Output(), "  status   print dialogs, queued messages and semaphores")
		fmt.Fprintln(fs.Output(), "  dump     write the shared state as json or msgpack")
		fmt.Fprintln(fs.Output(), "  destroy  remove the shared segment and semaphore set")
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	rest := fs.Args()
	if len(rest) == 0 {
		return inv, nil
	}

	inv.command = command(rest[0])
	sub := flag.NewFlagSet("shmchat "+rest[0], flag.ContinueOnError)
	sub.SetOutput(output)

	var format string
	switch inv.command {
	case cmdChat, cmdStatus:
	case cmdDump:
		sub.StringVar(&inv.dumpPath, "o", "-", "Output file, - for stdout")
		sub.StringVar(&format, "format", "json", "Encoding: json or msgpack")
	case cmdDestroy:
		sub.BoolVar(&inv.force, "force", false, "Remove the segment even while processes are attached")
	default:
		fs.Usage()
		return nil, fmt.Errorf("unknown command %q", rest[0])
	}

	if err := sub.Parse(rest[1:]); err != nil {
		return nil, err
	}
	if sub.NArg() > 0 {
		return nil, fmt.Errorf("%s: unexpected arguments %v", inv.command, sub.Args())
	}

	if inv.command == cmdDump {
		f, err := debugserver.ParseFormat(format)
		if err != nil {
			return nil, err
		}
		inv.dumpFormat = f
	}
	return inv, nil
}
