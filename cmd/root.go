// Package cmd implements the secema command line: it reads configuration,
// sets up logging and runs secure EMA computations.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/f3rmion/secema/conf"
	"github.com/spf13/cobra"
	jww "github.com/spf13/jwalterweatherman"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "secema",
	Short: "Computes exponential moving averages over secret-shared prices",
	Long: `secema runs a secret-sharing computation among several parties to
compute the exponential moving average of a price series. No party sees the
prices; only the caller sees the result.`,
	SilenceUsage: true,
}

// Execute runs the root command. It is called by main.main.
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		jww.ERROR.Printf("secema exiting with error: %+v", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig, initLog)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default is ./secema.yaml if present)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false,
		"Verbose mode for debugging")
	rootCmd.PersistentFlags().Int("parties", 0,
		"Number of computing parties")

	handleBindingError(viper.BindPFlag("verbose",
		rootCmd.PersistentFlags().Lookup("verbose")), "verbose")
	handleBindingError(viper.BindPFlag("parties",
		rootCmd.PersistentFlags().Lookup("parties")), "parties")
}

func handleBindingError(err error, flag string) {
	if err != nil {
		jww.FATAL.Panicf("Error on binding flag %q: %+v", flag, err)
	}
}

// initConfig reads the config file, if any, and environment overrides.
func initConfig() {
	conf.SetDefaults(viper.GetViper())

	if cfgFile == "" {
		if _, err := os.Stat("secema.yaml"); err != nil {
			return
		}
		cfgFile = "secema.yaml"
	}
	viper.SetConfigFile(cfgFile)
	if err := viper.ReadInConfig(); err != nil {
		jww.ERROR.Printf("Unable to read config file (%s): %s", cfgFile, err)
		os.Exit(1)
	}
}

// initLog sets logging thresholds and the log file.
func initLog() {
	threshold := jww.LevelInfo
	if viper.GetBool("verbose") {
		threshold = jww.LevelDebug
	}
	jww.SetLogThreshold(threshold)
	jww.SetStdoutThreshold(threshold)

	logPath := viper.GetString("log.path")
	if logPath == "" {
		return
	}
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		fmt.Printf("Invalid or missing log path %s, logging to stdout.\n", logPath)
		return
	}
	jww.SetLogOutput(logFile)
}
