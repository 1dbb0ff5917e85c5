package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/trstruth/pingback"
)

var bindAddress string
var serveCount int
var overridePayload string
var maxPacketSize int
var receiveTimeout time.Duration
var strict bool

// ServeCmd represents the serve subcommand which answers echo requests
// arriving on a local address
var ServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "answer icmp echo requests",
	Long:  "open a raw icmp socket on the bind address and reply to echo requests until the count is reached or interrupted",
	Args:  cobra.NoArgs,
	RunE:  serveRun,
}

func initServe() {
	ServeCmd.Flags().StringVarP(&bindAddress, "bind", "b", "127.0.0.1", "local ipv4 address to listen on")
	ServeCmd.Flags().IntVarP(&serveCount, "count", "c", pingback.Forever, "number of echo requests to answer, -1 for no limit")
	ServeCmd.Flags().StringVarP(&overridePayload, "payload", "p", "", "payload to send in every reply instead of echoing the request")
	ServeCmd.Flags().IntVar(&maxPacketSize, "max-packet-size", pingback.MaxPacketSize, "receive buffer size, larger datagrams are truncated")
	ServeCmd.Flags().DurationVar(&receiveTimeout, "receive-timeout", 0, "give up if no packet arrives for this long, 0 waits forever")
	ServeCmd.Flags().BoolVar(&strict, "strict", false, "drop echo requests with a bad checksum")
}

func serveRun(cmd *cobra.Command, args []string) error {
	bindIP, err := pingback.ParseIPFromString(bindAddress)
	if err != nil {
		return fmt.Errorf("invalid bind address %s: %w", bindAddress, err)
	}

	r := pingback.NewResponder(
		pingback.WithSink(pingback.NewLogrusSink(pingback.Logger())),
		pingback.WithMaxPacketSize(maxPacketSize),
		pingback.WithReceiveTimeout(receiveTimeout),
		pingback.WithChecksumValidation(strict),
	)
	if err := r.Start(bindIP); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	go func() {
		<-ctx.Done()
		r.Stop()
	}()

	err = r.Serve(serveCount, []byte(overridePayload))
	interrupted := ctx.Err() != nil
	r.Stop()

	stats := r.Stats()
	pingback.Logger().WithFields(logrus.Fields{
		"replied":   stats.Replied,
		"discarded": stats.Discarded,
		"malformed": stats.Malformed,
	}).Info("done serving")

	if interrupted && errors.Is(err, pingback.ErrSocketClosed) {
		return nil
	}
	return err
}
