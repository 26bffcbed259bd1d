// busbridge demo CLI.
//
// Runs a loopback pair of bridge instances and drives a service or action
// exchange between them, in either role:
//
//	busbridge client --service-name add_two_ints --expected-requests 5
//	busbridge server --action-name fibonacci/_action/ --timeout 30
//
// The peer role runs in-process over the in-memory wire; the exchange and
// the callback traffic are identical to a two-process deployment.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/edgelink-robotics/busbridge/enabler/config"
	"github.com/edgelink-robotics/busbridge/rpcbus"
)

type cliOptions struct {
	configPath         string
	actionName         string
	serviceName        string
	timeoutSecs        int
	persistencePath    string
	expectedRequests   int
	requestInitialWait int
	cancelRequests     bool
}

func main() {
	opts := &cliOptions{}

	root := &cobra.Command{
		Use:           "busbridge <client|server>",
		Short:         "Bridge a DDS-style bus to service and action RPC callbacks",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			mode := args[0]
			if mode != "client" && mode != "server" {
				return fmt.Errorf("mode must be client or server, got %q", mode)
			}
			return run(mode, opts)
		},
	}

	flags := root.Flags()
	flags.StringVar(&opts.configPath, "config", "", "path to a YAML configuration file")
	flags.StringVar(&opts.actionName, "action-name", "", "action to exercise (ROS 2 naming, e.g. fibonacci/_action/)")
	flags.StringVar(&opts.serviceName, "service-name", "add_two_ints", "service to exercise")
	flags.IntVar(&opts.timeoutSecs, "timeout", 30, "overall timeout in seconds")
	flags.StringVar(&opts.persistencePath, "persistence-path", "", "directory to persist received type definitions")
	flags.IntVar(&opts.expectedRequests, "expected-requests", 3, "number of requests or goals to exchange")
	flags.IntVar(&opts.requestInitialWait, "request-initial-wait", 0, "seconds to wait before the first request")
	flags.BoolVar(&opts.cancelRequests, "cancel-requests", false, "cancel goals instead of awaiting their results")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "busbridge:", err)
		os.Exit(1)
	}
}

func run(mode string, opts *cliOptions) error {
	log := logrus.New()

	cfg := config.DefaultEnablerConfig()
	if opts.configPath != "" {
		loaded, err := config.LoadEnablerConfig(opts.configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}
	logger := rpcbus.NewLogrusLogger(log)

	demo, err := newDemo(cfg, logger, opts)
	if err != nil {
		return err
	}

	if opts.actionName != "" {
		return demo.runAction(mode)
	}
	return demo.runService(mode)
}
