package main

import (
	"flag"

	"github.com/gomlx/go-zhwordpiece/internal/config"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"k8s.io/klog/v2"
)

var (
	cfgFile   string
	activeCfg *config.Config
)

func NewRootCmd() *cobra.Command {
	defaults := config.DefaultConfig()

	cmd := &cobra.Command{
		Use:           "zhwp",
		Short:         "Chinese-aware WordPiece tokenizer",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			loaded, err := config.Load(config.LoadOptions{
				Cmd:        cmd,
				ConfigFile: cfgFile,
				Defaults:   defaults,
			})
			if err != nil {
				return err
			}
			activeCfg = &loaded
			return nil
		},
	}
	cmd.SetGlobalNormalizationFunc(config.NormalizeFlagName)

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Optional config file (yaml|toml|json)")
	config.RegisterFlags(cmd.PersistentFlags(), defaults)

	// klog flags: -v, --vmodule, --logtostderr, ...
	klogFlags := flag.NewFlagSet("klog", flag.ContinueOnError)
	klog.InitFlags(klogFlags)
	cmd.PersistentFlags().AddGoFlagSet(klogFlags)

	cmd.AddCommand(newTokenizeCmd())
	cmd.AddCommand(newTrainCmd())
	cmd.AddCommand(newEncodeCmd())
	cmd.AddCommand(newConvertCmd())

	return cmd
}

func requireConfig() (*config.Config, error) {
	if activeCfg == nil {
		return nil, errors.New("configuration not loaded")
	}
	return activeCfg, nil
}
