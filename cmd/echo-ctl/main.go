package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	cli "github.com/spf13/pflag"

	"echomind/internal/ipc"
)

func main() {
	socket := cli.StringP("socket", "s", ipc.DefaultSocketPath, "Control socket path")
	timeout := cli.DurationP("timeout", "t", 5*time.Second, "Request timeout")
	cli.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: echo-ctl [flags] status|say <text>|text <utterance>|interrupt|quit")
		cli.PrintDefaults()
	}
	cli.Parse()

	args := cli.Args()
	if len(args) == 0 {
		cli.Usage()
		os.Exit(2)
	}
	msg := ipc.ControlMessage{Cmd: args[0], Text: strings.Join(args[1:], " ")}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	reply, err := ipc.Send(ctx, *socket, msg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "echo not running:", err)
		os.Exit(1)
	}
	if !reply.OK {
		fmt.Fprintln(os.Stderr, "error:", reply.Error)
		os.Exit(1)
	}
	fmt.Println(reply.State)
}
