package cli

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ensembleworks/ensemble/internal/version"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "ensemble",
	Short: "Ensemble - Resumable multi-movement agent workflows",
	Long: `Ensemble runs pieces: declarative workflows where each movement is an
agent call and rules route the run to the next movement, in parallel
where the piece fans out.

Example:
  ensemble run piece.yaml --workdir ./repo --param ticket=ENG-412`,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Set version for --version flag
	rootCmd.Version = version.Short()
	rootCmd.SetVersionTemplate("{{.Name}} {{.Version}}\n")

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "project config file (default is .ensemble.yaml)")
	rootCmd.PersistentFlags().Bool("verbose", false, "enable verbose output")
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

func initConfig() {
	viper.SetEnvPrefix("ENSEMBLE")
	viper.AutomaticEnv()
}

// projectConfigPath returns the project config layer path: the --config flag
// when set, otherwise .ensemble.yaml in the working directory.
func projectConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	return filepath.Join(cwd, ".ensemble.yaml")
}

// globalConfigPath returns the global config layer path under the user
// config directory.
func globalConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "ensemble", "config.yaml")
}
