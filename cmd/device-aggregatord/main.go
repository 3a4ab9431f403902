// Command device-aggregatord is the cluster-wide aggregator (§2 C5-C7):
// it serves the HTTP ingress internal/aggregator wires on top of the TTL
// cache (internal/cache) and cross-host DAG builder (internal/crosshostdag).
package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/ubuntu/device-scanner/internal/aggregator"
	"github.com/ubuntu/device-scanner/internal/cache"
	"github.com/ubuntu/device-scanner/internal/config"
	"github.com/ubuntu/device-scanner/internal/i18n"
	"github.com/ubuntu/device-scanner/internal/log"
)

var (
	cmdErr        error
	flagVerbosity int
	flagBind      string

	rootCmd = &cobra.Command{
		Use:   "device-aggregatord",
		Short: i18n.G("Cluster-wide device aggregator"),
		Long: i18n.G(`Caches the latest per-host device graph posted by each host's
proxy, unifies them into one cross-host DAG, and serves the cached
per-host graphs and a Graphviz rendering of the merged DAG.`),
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
			s := aggregator.New(cache.New())
			cmdErr = runHTTPServer(s)
		},
		SilenceErrors: true,
		SilenceUsage:  true,
	}
)

func runHTTPServer(s *aggregator.Server) error {
	if err := http.ListenAndServe(flagBind, s.Router()); err != nil {
		return fmt.Errorf(i18n.G("aggregator HTTP server stopped: %v"), err)
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().CountVarP(&flagVerbosity, "verbose", "v", i18n.G("issue INFO (-v) and DEBUG (-vv) output"))
	rootCmd.PersistentFlags().StringVar(&flagBind, "bind", config.DefaultAggregatorBindAddress+":8080", i18n.G("address to serve the aggregator HTTP ingress on"))
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
