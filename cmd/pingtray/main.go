package main

import (
	"fmt"
	"os"

	"github.com/dushixiang/pingtray/internal/config"
	"github.com/spf13/cobra"
)

var (
	// Version 构建时通过 -ldflags 注入
	Version = "dev"

	configPath string
)

var rootCmd = &cobra.Command{
	Use:     "pingtray",
	Short:   "Pingtray - 持续探测单个网络目标的可达性与延迟",
	Version: Version,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCmd.RunE(cmd, args)
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath(), "配置文件路径")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(pingCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(autostartCmd)
	rootCmd.AddCommand(serviceCmd)
}

func newStore() *config.Store {
	return config.NewStore(nil, configPath)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
