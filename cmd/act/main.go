package main

import (
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	act "github.com/behrlich/go-act"
	"github.com/behrlich/go-act/internal/config"
	"github.com/behrlich/go-act/internal/device"
	"github.com/behrlich/go-act/internal/logging"
)

func main() {
	app := &cli.App{
		Name:      "act",
		Usage:     "drive a flash-certification I/O workload against raw block devices",
		ArgsUsage: "<config-file>",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "enable debug logging",
			},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		log.Errorf("%v", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	logging.Setup(c.Bool("verbose"))

	if c.NArg() != 1 {
		return errors.New("expected exactly one config-file argument")
	}
	cfg, err := config.Load(c.Args().First())
	if err != nil {
		return device.WrapError("config", device.CodeConfigInvalid, err)
	}

	// SIGUSR1 dumps all goroutine stacks without disturbing the run.
	dumpCh := make(chan os.Signal, 1)
	signal.Notify(dumpCh, syscall.SIGUSR1)
	go func() {
		for range dumpCh {
			buf := make([]byte, 1<<20)
			n := runtime.Stack(buf, true)
			fmt.Fprintf(os.Stderr, "=== goroutine stack dump ===\n%s\n=== end stack dump ===\n", buf[:n])
		}
	}()

	rc, err := act.New(cfg)
	if err != nil {
		return err
	}
	return rc.Run()
}
