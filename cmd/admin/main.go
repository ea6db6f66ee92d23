package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
)

const usageText = `usage: admin <command> [flags]

commands:
  players    list stored player records
  rides      list stored ride records and their owners
  audit      print audit log entries
  snapshots  list snapshot files
  snapshot   take a snapshot (via the running server, or -local)
  restore    load a snapshot back into the store
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usageText)
		os.Exit(2)
	}
	cmd, args := os.Args[1], os.Args[2:]

	var err error
	switch cmd {
	case "players":
		err = playersCmd(args, os.Stdout)
	case "rides":
		err = ridesCmd(args, os.Stdout)
	case "audit":
		err = auditCmd(args, os.Stdout)
	case "snapshots":
		err = snapshotsCmd(args, os.Stdout)
	case "snapshot":
		err = snapshotCmd(args, os.Stdout)
	case "restore":
		err = restoreCmd(args, os.Stdout)
	case "help", "-h", "--help":
		fmt.Print(usageText)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usageText)
		os.Exit(2)
	}
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, cmd+":", err)
		os.Exit(1)
	}
}

func newFlagSet(name string) *flag.FlagSet {
	return flag.NewFlagSet(name, flag.ContinueOnError)
}
