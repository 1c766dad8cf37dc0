package gate

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "gate",
	Short: "Gate is a high-performance, extensible Minecraft proxy",
	RunE: func(cmd *cobra.Command, args []string) error {
		return Run()
	},
}

func init() {
	rootCmd.PersistentFlags().String(configPathFlag, "velocity.toml", "path to the proxy's configuration file")
	_ = viper.BindPFlag(configPathFlag, rootCmd.PersistentFlags().Lookup(configPathFlag))
}

// Execute runs the root command, parsing os.Args.
func Execute() error {
	return rootCmd.Execute()
}
