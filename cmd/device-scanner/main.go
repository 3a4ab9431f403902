// Command device-scanner is the CLI client for device-scannerd's socket:
// it issues Stream or GetMounts and copies the response to stdout.
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"

	"github.com/k0kubun/pp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/ubuntu/device-scanner/internal/config"
	"github.com/ubuntu/device-scanner/internal/device"
	"github.com/ubuntu/device-scanner/internal/i18n"
)

var (
	cmdErr     error
	flagSocket string
	flagDebug  bool

	rootCmd = &cobra.Command{
		Use:           "device-scanner",
		Short:         i18n.G("CLI client for the per-host device scanner daemon"),
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	streamCmd = &cobra.Command{
		Use:   "stream",
		Short: i18n.G("Print the current device graph, then every graph update as it happens"),
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			cmdErr = issue("Stream")
		},
	}

	mountsCmd = &cobra.Command{
		Use:   "mounts",
		Short: i18n.G("Print the current mount table"),
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			cmdErr = issue("GetMounts")
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&flagSocket, "socket", config.DefaultSocket, i18n.G("path of the daemon's socket"))
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, i18n.G("pretty-print each line as a Go value instead of raw JSON"))
	rootCmd.AddCommand(streamCmd, mountsCmd)
}

// issue dials the daemon's socket, writes the bare command tag, and
// copies everything the daemon writes back to stdout until it closes
// the connection (GetMounts) or the process is interrupted (Stream).
func issue(command string) error {
	conn, err := net.Dial("unix", flagSocket)
	if err != nil {
		return fmt.Errorf(i18n.G("couldn't connect to %q: %v"), flagSocket, err)
	}
	defer conn.Close()

	if _, err := fmt.Fprintf(conn, "%q\n", command); err != nil {
		return fmt.Errorf(i18n.G("couldn't send command: %v"), err)
	}

	if !flagDebug {
		if _, err := io.Copy(os.Stdout, bufio.NewReader(conn)); err != nil && err != io.EOF {
			return fmt.Errorf(i18n.G("connection error: %v"), err)
		}
		return nil
	}

	return debugPrintLines(conn)
}

// debugPrintLines pretty-prints each newline-delimited Device tree with
// pp instead of dumping raw JSON, for interactive troubleshooting.
func debugPrintLines(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		var d device.Device
		if err := json.Unmarshal(scanner.Bytes(), &d); err != nil {
			fmt.Println(scanner.Text())
			continue
		}
		pp.Println(d)
	}
	return scanner.Err()
}

func main() {
	i18n.InitI18nDomain(config.TEXTDOMAIN)

	if err := rootCmd.Execute(); err != nil {
		logrus.Error(err)
		os.Exit(2)
	}
	if cmdErr != nil {
		logrus.Error(cmdErr)
		os.Exit(1)
	}
}
