package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"github.com/trstruth/pingback"
)

var pingCount int
var interval time.Duration
var replyTimeout time.Duration
var sourceIP string
var payloadSize int

// PingCmd represents the ping subcommand, a small echo client for exercising
// a responder
var PingCmd = &cobra.Command{
	Use:   "ping HOST",
	Short: "send icmp echo requests to a host",
	Args:  cobra.ExactArgs(1),
	RunE:  pingRun,
}

func initPing() {
	PingCmd.Flags().IntVarP(&pingCount, "count", "c", 5, "number of echo requests to send, -1 for no limit")
	PingCmd.Flags().DurationVarP(&interval, "interval", "i", time.Second, "wait between requests")
	PingCmd.Flags().DurationVarP(&replyTimeout, "timeout", "W", 3*time.Second, "time to wait for each reply")
	PingCmd.Flags().StringVarP(&sourceIP, "source", "S", "", "source address, defaults to the routing table's choice")
	PingCmd.Flags().IntVarP(&payloadSize, "size", "s", 56, "number of data bytes to send")
}

func pingRun(cmd *cobra.Command, args []string) error {
	destIP, err := pingback.ParseIPFromString(args[0])
	if err != nil {
		return err
	}

	var srcIP net.IP
	if sourceIP != "" {
		srcIP, err = pingback.ParseIPFromString(sourceIP)
	} else {
		srcIP, err = pingback.SourceIPForDest(destIP)
	}
	if err != nil {
		return fmt.Errorf("failed to pick a source address: %w", err)
	}

	sock, err := pingback.OpenRawSocket(srcIP)
	if err != nil {
		return err
	}

	p := pingback.NewPinger(sock,
		pingback.WithPayloadSize(payloadSize),
		pingback.WithInterval(interval),
		pingback.WithReplyTimeout(replyTimeout),
	)
	defer p.Close()

	fmt.Printf("PING %s (%s): %d data bytes", args[0], destIP, p.PayloadSize())
	if verbose {
		fmt.Printf(", id 0x%04x = %d", p.Identifier(), p.Identifier())
	}
	fmt.Println()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	stats, err := p.Run(ctx, destIP, pingCount, printResult)

	fmt.Printf("--- %s ping statistics ---\n", args[0])
	fmt.Print(renderStats(stats))

	return err
}

func printResult(res pingback.EchoResult) {
	if res.Err != nil {
		fmt.Println(res.Err)
		return
	}
	fmt.Printf("%d bytes from %s: icmp_seq=%d time=%.3f ms\n", res.Size, res.Peer, res.Sequence, ms(res.RTT))
}
