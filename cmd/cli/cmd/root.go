// Package cmd provides the CLI commands for dicomflow.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	verbose bool
)

// rootCmd is the base command.
var rootCmd = &cobra.Command{
	Use:   "dicomflow",
	Short: "dicomflow - DICOM job scheduler client",
	Long: `
  ____  _                    _____ _
 |  _ \(_) ___ ___  _ __ ___|  ___| | _____      __
 | | | | |/ __/ _ \| '_ ' _ \ |_  | |/ _ \ \ /\ / /
 | |_| | | (_| (_) | | | | | |  _| | | (_) \ V  V /
 |____/|_|\___\___/|_| |_| |_|_|   |_|\___/ \_/\_/

dicomflow drives a remote dicomflow API server: query/retrieve/echo
against registered DICOM peers, and inspect job status.

Run 'dicomflow help <command>' for details on any command.
`,
	Version: "1.0.0",
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./dicomflow.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().String("api-url", "http://localhost:8080", "dicomflow API server base URL")

	// Bind flags to viper
	viper.BindPFlag("api.url", rootCmd.PersistentFlags().Lookup("api-url"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("dicomflow")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.dicomflow")
	}

	viper.SetEnvPrefix("DICOMFLOW")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Println("Using config:", viper.ConfigFileUsed())
	}
}

// Color helpers
func green(s string) string  { return "\033[32m" + s + "\033[0m" }
func red(s string) string    { return "\033[31m" + s + "\033[0m" }
func yellow(s string) string { return "\033[33m" + s + "\033[0m" }
func cyan(s string) string   { return "\033[36m" + s + "\033[0m" }
func bold(s string) string   { return "\033[1m" + s + "\033[0m" }

func success(msg string) { fmt.Println(green("✓ ") + msg) }
func fail(msg string)    { fmt.Fprintln(os.Stderr, red("✗ ")+msg) }
func info(msg string)    { fmt.Println(cyan("ℹ ") + msg) }
func warn(msg string)    { fmt.Println(yellow("⚠ ") + msg) }
