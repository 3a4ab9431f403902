// Command device-scannerd is the per-host daemon (§2 C1-C4): it listens
// on a Unix socket (optionally systemd-activated) and serves Stream /
// GetMounts / event-ingestion connections via internal/scanner.
package main

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/ubuntu/device-scanner/internal/config"
	"github.com/ubuntu/device-scanner/internal/i18n"
	"github.com/ubuntu/device-scanner/internal/log"
	"github.com/ubuntu/device-scanner/internal/scanner"
)

var (
	cmdErr        error
	flagVerbosity int
	flagSocket    string

	rootCmd = &cobra.Command{
		Use:   "device-scannerd",
		Short: i18n.G("Per-host storage device scanner daemon"),
		Long: i18n.G(`Ingests udev, mount table and ZED events for this host,
maintains the in-memory device graph, and serves it to subscribers over
a local socket.`),
		Args: cobra.NoArgs,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			config.SetVerboseMode(flagVerbosity > 0)
			if flagVerbosity > 1 {
				log.SetLevel(logrus.DebugLevel)
			} else if flagVerbosity == 1 {
				log.SetLevel(logrus.InfoLevel)
			}
		},
		Run: func(cmd *cobra.Command, args []string) {
			s, err := scanner.New(flagSocket)
			if err != nil {
				cmdErr = fmt.Errorf(i18n.G("couldn't start scanner daemon: %v"), err)
				return
			}

			c := make(chan os.Signal, 1)
			signal.Notify(c, os.Interrupt)
			go func() {
				<-c
				s.Stop()
			}()

			cmdErr = s.Listen()
		},
		SilenceErrors: true,
		SilenceUsage:  true,
	}
)

func init() {
	rootCmd.PersistentFlags().CountVarP(&flagVerbosity, "verbose", "v", i18n.G("issue INFO (-v) and DEBUG (-vv) output"))
	rootCmd.PersistentFlags().StringVar(&flagSocket, "socket", config.DefaultSocket, i18n.G("path of the listening socket"))
}

func main() {
	i18n.InitI18nDomain(config.TEXTDOMAIN)

	if err := rootCmd.Execute(); err != nil {
		logrus.SetFormatter(&logrus.TextFormatter{DisableLevelTruncation: true, DisableTimestamp: true})
		logrus.Error(err)
		os.Exit(2)
	}
	if cmdErr != nil {
		logrus.Error(cmdErr)
		os.Exit(1)
	}
}
