package app

import (
	"fmt"
	"sync/atomic"

	genericapiserver "k8s.io/apiserver/pkg/server"

	"github.com/autopeer-io/autopeer-bms/cmd/cpeer-bms-agent/app/options"
	"github.com/autopeer-io/autopeer-bms/internal/bmsagent"
	"github.com/autopeer-io/autopeer-bms/pkg/app"
	"github.com/autopeer-io/autopeer-bms/pkg/log"
)

const (
	commandName = "cpeer-bms-agent"
	commandDesc = `The Autopeer BMS Agent reads battery management system traffic from a
CAN bus, detects which vendor protocol the pack speaks and publishes the
decoded battery state over HTTP, gRPC health and MQTT.

Protocol selection and the log level are reloaded when the config file changes.`
)

func NewApp() *app.App {
	opts := options.NewAgentOptions()
	var current atomic.Pointer[bmsagent.Agent]

	application := app.NewApp(
		commandName,
		"Launch the Autopeer BMS agent",
		app.WithDescription(commandDesc),
		app.WithOptions(opts),
		app.WithDefaultValidArgs(),
		app.WithRunFunc(run(opts, &current)),
		app.WithReloadFunc(reload(opts, &current)),
	)
	return application
}

func run(opts *options.AgentOptions, current *atomic.Pointer[bmsagent.Agent]) app.RunFunc {
	return func() error {
		log.Init(opts.Log)
		defer log.Sync()

		ctx := genericapiserver.SetupSignalContext()

		cfg, err := opts.Config()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		agent, err := cfg.NewAgent()
		if err != nil {
			return fmt.Errorf("failed to create agent: %w", err)
		}
		current.Store(agent)

		return agent.Run(ctx)
	}
}

func reload(opts *options.AgentOptions, current *atomic.Pointer[bmsagent.Agent]) app.ReloadFunc {
	return func() error {
		if err := log.SetLevel(opts.Log.Level); err != nil {
			return err
		}
		log.Info("Configuration reloaded", "level", log.Level(), "protocol", opts.CanOptions.Protocol)

		agent := current.Load()
		if agent == nil {
			return nil
		}
		return agent.Reload(opts.CanOptions)
	}
}
