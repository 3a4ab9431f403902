// Command device-scanner-proxy forwards this host's device graph to the
// cluster aggregator over mTLS (§4.7/§6, interface-only per spec.md).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/ubuntu/device-scanner/internal/config"
	"github.com/ubuntu/device-scanner/internal/i18n"
	"github.com/ubuntu/device-scanner/internal/proxy"
)

var (
	cmdErr     error
	flagSocket string

	rootCmd = &cobra.Command{
		Use:           "device-scanner-proxy",
		Short:         i18n.G("Forward this host's device graph to the cluster aggregator"),
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		Run: func(cmd *cobra.Command, args []string) {
			managerURL := os.Getenv("IML_MANAGER_URL")
			if managerURL == "" {
				cmdErr = fmt.Errorf(i18n.G("IML_MANAGER_URL is not set"))
				return
			}
			host, err := os.Hostname()
			if err != nil {
				cmdErr = fmt.Errorf(i18n.G("couldn't determine host name: %v"), err)
				return
			}

			p, err := proxy.New(flagSocket, managerURL, host, proxy.IdentityFromEnv())
			if err != nil {
				cmdErr = err
				return
			}

			ctx, cancel := context.WithCancel(context.Background())
			c := make(chan os.Signal, 1)
			signal.Notify(c, os.Interrupt)
			go func() {
				<-c
				cancel()
			}()

			cmdErr = p.Run(ctx)
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&flagSocket, "socket", config.DefaultSocket, i18n.G("path of the local scanner daemon's socket"))
}

func main() {
	i18n.InitI18nDomain(config.TEXTDOMAIN)

	if err := rootCmd.Execute(); err != nil {
		logrus.Error(err)
		os.Exit(2)
	}
	if cmdErr != nil && cmdErr != context.Canceled {
		logrus.Error(cmdErr)
		os.Exit(1)
	}
}
