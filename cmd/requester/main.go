package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"tcpexchange/pkg/exchange"
)

// defaultMessage отправляется, если сообщение не задано аргументом
const defaultMessage = "Hello from TCP Client!"

func main() {
	cfg, err := exchange.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	host := flag.String("host", cfg.TargetHost, "target host")
	port := flag.Int("port", cfg.TargetPort, "target port")
	timeout := flag.Duration("timeout", cfg.ConnectTimeout, "connect timeout")
	trace := flag.Bool("trace", cfg.WireTrace, "log a synthetic per-layer wire trace")
	flag.Parse()

	cfg.TargetHost = *host
	cfg.TargetPort = *port
	cfg.ConnectTimeout = *timeout
	cfg.WireTrace = *trace

	setupLogging(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	message := defaultMessage
	if flag.NArg() > 0 {
		message = flag.Arg(0)
	}

	requester := exchange.NewRequester(cfg)
	ack, err := requester.Send(cfg.TargetHost, cfg.TargetPort, []byte(message))
	if err != nil {
		fmt.Fprintf(os.Stderr, "exchange failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(string(ack))
}

func setupLogging(level string) {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}
