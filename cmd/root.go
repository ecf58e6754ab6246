package cmd

import (
	"context"
	"fmt"

	"github.com/projecteru2/core/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	cmdcore "github.com/appfleet/appfleet/cmd/core"
	cmdpoolctl "github.com/appfleet/appfleet/cmd/poolctl"
	"github.com/appfleet/appfleet/config"
)

var (
	cfgFile string
	conf    *config.Config
	handler = &cmdpoolctl.Handler{}
)

var rootCmd = func() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "poolctl",
		Short: "poolctl - application process pool supervisor",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return initConfig(cmdcore.CommandContext(cmd))
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return handler.Close(cmdcore.CommandContext(cmd))
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")
	cmd.PersistentFlags().String("run-dir", "", "runtime directory for PID files, sockets, and the daemon lock")
	cmd.PersistentFlags().String("worker-command", "", "worker binary poolctl spawns for every process")
	cmd.PersistentFlags().Int("max", 0, "pool-wide process ceiling")

	_ = viper.BindPFlag("run_dir", cmd.PersistentFlags().Lookup("run-dir"))
	_ = viper.BindPFlag("worker_command", cmd.PersistentFlags().Lookup("worker-command"))
	_ = viper.BindPFlag("max", cmd.PersistentFlags().Lookup("max"))

	viper.SetEnvPrefix("POOLCTL")
	viper.AutomaticEnv()

	handler.ConfProvider = func() *config.Config { return conf }
	handler.PoolProvider = handler.LazyPool

	for _, c := range cmdpoolctl.Commands(handler) {
		cmd.AddCommand(c)
	}

	return cmd
}()

func initConfig(ctx context.Context) error {
	var err error
	conf, err = config.LoadConfig(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := viper.Unmarshal(conf); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return log.SetupLog(ctx, &conf.Log, "")
}

// Execute is the main entry point called from main.go.
func Execute() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	return rootCmd.ExecuteContext(ctx)
}
