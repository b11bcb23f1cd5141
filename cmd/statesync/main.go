package main

import (
	"log"
	"os"

	statesync "github.com/colyseus/colyseus-unity-sdk-sub001"
	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string
	httpAddr   string
	journalDir string

	options statesync.Options

	rootCmd = &cobra.Command{
		Use:   "statesync",
		Short: "Room state sync client: join rooms, record and replay their state",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) (err error) {
			if configPath != "" {
				if options, err = statesync.LoadOptions(configPath); err != nil {
					return err
				}
			}
			if logLevel != "" {
				options.LogLevel = logLevel
				options.Logger = nil
			}
			if journalDir != "" {
				options.JournalDir = journalDir
			}
			options.SetDefaults()
			return nil
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML options file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "debug, info, warn or error")
	rootCmd.PersistentFlags().StringVarP(&journalDir, "journal", "j", "", "journal directory")

	joinCmd.Flags().StringVar(&httpAddr, "http", "", "serve /state, /refs and /metrics on this address")
	rootCmd.AddCommand(joinCmd, replayCmd, sessionsCmd, replCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Printf("statesync: %v", err)
		os.Exit(1)
	}
}
