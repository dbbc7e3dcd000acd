package app

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	cliflag "k8s.io/component-base/cli/flag"
	"k8s.io/component-base/cli/globalflag"
)

// RunFunc is the entrypoint of the application after flags, config file
// and environment have been applied to the options.
type RunFunc func() error

// ReloadFunc is invoked after the config file changed on disk and the new
// values were decoded and validated into the options.
type ReloadFunc func() error

// NamedFlagSetOptions is implemented by the options of every command.
type NamedFlagSetOptions interface {
	// Flags returns the flags grouped by section.
	Flags() cliflag.NamedFlagSets

	// Complete fills in fields derived from other fields.
	Complete() error

	// Validate checks the options after they have been completed.
	Validate() error
}

// App is a command line application backed by cobra and viper.
type App struct {
	name        string
	shortDesc   string
	description string
	envPrefix   string

	options NamedFlagSetOptions
	runFunc RunFunc
	reload  ReloadFunc
	args    cobra.PositionalArgs

	noConfig bool
	out      io.Writer

	configFile string
	viper      *viper.Viper
	mu         sync.Mutex

	cmd *cobra.Command
}

// Option configures an App.
type Option func(*App)

func WithDescription(desc string) Option {
	return func(a *App) { a.description = desc }
}

func WithOptions(opts NamedFlagSetOptions) Option {
	return func(a *App) { a.options = opts }
}

func WithRunFunc(run RunFunc) Option {
	return func(a *App) { a.runFunc = run }
}

// WithReloadFunc watches the config file and calls fn on every change.
func WithReloadFunc(fn ReloadFunc) Option {
	return func(a *App) { a.reload = fn }
}

// WithDefaultValidArgs rejects positional arguments.
func WithDefaultValidArgs() Option {
	return func(a *App) {
		a.args = func(cmd *cobra.Command, args []string) error {
			for _, arg := range args {
				if len(arg) > 0 {
					return fmt.Errorf("%q does not take any arguments, got %q", cmd.CommandPath(), args)
				}
			}
			return nil
		}
	}
}

func WithValidArgs(args cobra.PositionalArgs) Option {
	return func(a *App) { a.args = args }
}

// WithEnvPrefix overrides the prefix of environment variables. The default
// is the upper-cased command name, so --can.source maps to CPEER_BMS_AGENT_CAN_SOURCE.
func WithEnvPrefix(prefix string) Option {
	return func(a *App) { a.envPrefix = prefix }
}

// WithNoConfig removes the --config flag.
func WithNoConfig() Option {
	return func(a *App) { a.noConfig = true }
}

// WithOutput sets where the effective flags are printed on startup.
func WithOutput(w io.Writer) Option {
	return func(a *App) { a.out = w }
}

// NewApp creates a new application.
func NewApp(name string, shortDesc string, opts ...Option) *App {
	a := &App{
		name:      name,
		shortDesc: shortDesc,
		envPrefix: strings.ToUpper(strings.ReplaceAll(name, "-", "_")),
		out:       os.Stdout,
		viper:     viper.New(),
	}
	for _, o := range opts {
		o(a)
	}

	a.buildCommand()
	return a
}

// Command returns the underlying cobra command.
func (a *App) Command() *cobra.Command {
	return a.cmd
}

// Run executes the command and exits the process on failure.
func (a *App) Run() {
	if err := a.cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func (a *App) buildCommand() {
	cmd := &cobra.Command{
		Use:           a.name,
		Short:         a.shortDesc,
		Long:          a.description,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          a.args,
	}
	cmd.SetOut(a.out)
	cmd.SetErr(os.Stderr)
	cmd.Flags().SortFlags = true

	var namedFlagSets cliflag.NamedFlagSets
	if a.options != nil {
		namedFlagSets = a.options.Flags()
	}
	global := namedFlagSets.FlagSet("global")
	if !a.noConfig {
		global.StringVarP(&a.configFile, "config", "c", "", "Read configuration from the specified file (yaml, json or toml).")
	}
	globalflag.AddGlobalFlags(global, cmd.Name())

	for _, fs := range namedFlagSets.FlagSets {
		cmd.Flags().AddFlagSet(fs)
	}
	cliflag.SetUsageAndHelpFunc(cmd, namedFlagSets, 0)

	if a.runFunc != nil {
		cmd.RunE = a.runCommand
	}
	a.cmd = cmd
}

func (a *App) runCommand(cmd *cobra.Command, args []string) error {
	if a.options != nil {
		if err := a.loadConfig(cmd); err != nil {
			return err
		}
		if err := a.applyOptions(); err != nil {
			return err
		}
	}

	printFlags(a.out, cmd.Flags())

	if a.configFile != "" && a.reload != nil {
		a.viper.OnConfigChange(a.onConfigChange)
		a.viper.WatchConfig()
	}

	return a.runFunc()
}

// loadConfig layers config file and environment under explicitly set flags.
func (a *App) loadConfig(cmd *cobra.Command) error {
	v := a.viper
	if a.configFile != "" {
		v.SetConfigFile(a.configFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config file %q: %w", a.configFile, err)
		}
	}

	v.SetEnvPrefix(a.envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	return nil
}

func (a *App) applyOptions() error {
	if err := a.viper.Unmarshal(a.options); err != nil {
		return fmt.Errorf("failed to decode configuration: %w", err)
	}
	if err := a.options.Complete(); err != nil {
		return err
	}
	return a.options.Validate()
}

func (a *App) onConfigChange(e fsnotify.Event) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.applyOptions(); err != nil {
		fmt.Fprintf(os.Stderr, "ignoring config change in %s: %v\n", e.Name, err)
		return
	}
	if err := a.reload(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to reload %s: %v\n", e.Name, err)
	}
}
