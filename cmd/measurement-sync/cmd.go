package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/noah-isme/measureme/internal/measurementsync"
)

var errHelp = errors.New("help provided")

type syncAgent interface {
	Start(ctx context.Context)
	Stop()
	Record(studentID string, height, weight float64, at time.Time) (measurementsync.Entry, error)
	SyncOnce(ctx context.Context) (measurementsync.Result, error)
	Run(ctx context.Context) error
}

type commandLine struct {
	agent syncAgent
	out   io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  record -student ID -height CM -weight KG [-at RFC3339] [-sync] - spool one reading")
	fmt.Fprintln(cli.out, "  sync                                                       - push pending readings once")
	fmt.Fprintln(cli.out, "  run                                                        - push pending readings every SYNC_INTERVAL")
}

func (cli *commandLine) run(ctx context.Context, args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	recordCmd := flag.NewFlagSet("record", flag.ContinueOnError)
	recordCmd.SetOutput(cli.out)
	recordStudent := recordCmd.String("student", "", "Student ID the reading belongs to.")
	recordHeight := recordCmd.Float64("height", 0, "Height in centimetres.")
	recordWeight := recordCmd.Float64("weight", 0, "Weight in kilograms.")
	recordAt := recordCmd.String("at", "", "Reading time (RFC3339). Defaults to now.")
	recordSync := recordCmd.Bool("sync", false, "Push pending readings after spooling.")

	switch args[1] {
	case "record":
		if err := recordCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *recordStudent == "" {
			recordCmd.Usage()
			return errHelp
		}
		var at time.Time
		if *recordAt != "" {
			parsed, err := time.Parse(time.RFC3339, *recordAt)
			if err != nil {
				return fmt.Errorf("invalid -at %q: %w", *recordAt, err)
			}
			at = parsed
		}
		entry, err := cli.agent.Record(*recordStudent, *recordHeight, *recordWeight, at)
		if err != nil {
			return err
		}
		fmt.Fprintf(cli.out, "spooled %s\n", entry.Measurement.ID)
		if *recordSync {
			return cli.syncOnce(ctx)
		}
		return nil
	case "sync":
		return cli.syncOnce(ctx)
	case "run":
		return cli.agent.Run(ctx)
	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) syncOnce(ctx context.Context) error {
	cli.agent.Start(ctx)
	defer cli.agent.Stop()
	res, err := cli.agent.SyncOnce(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "sent %d, rejected %d, pending %d\n", res.Sent, res.Rejected, res.Pending())
	return nil
}
