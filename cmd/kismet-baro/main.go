package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"kismet-baro/internal/config"
	"kismet-baro/internal/record"
)

type options struct {
	configPath string
	server     string
	port       int
	output     string

	summarize string
	ssid      string
	bssid     string
}

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		log.Fatalf("kismet-baro: %v", err)
	}
}

func run(args []string, stdout io.Writer) error {
	opts, err := parseFlags(args, stdout)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	if opts.summarize != "" {
		return printSummary(stdout, opts.summarize, opts.ssid, opts.bssid)
	}

	cfg, err := config.Load(opts.configPath, opts.overrides()...)
	if err != nil {
		return fmt.Errorf("config load failed: %w", err)
	}

	log.SetPrefix("session=" + uuid.NewString() + " ")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	return runSession(ctx, cfg, log.Default())
}

func parseFlags(args []string, stdout io.Writer) (options, error) {
	var opts options
	fs := pflag.NewFlagSet("kismet-baro", pflag.ContinueOnError)
	fs.SetOutput(stdout)
	fs.StringVar(&opts.configPath, "config", "", "path to YAML config")
	fs.StringVarP(&opts.server, "server", "s", "", "kismet server host (overrides kismet.addr)")
	fs.IntVarP(&opts.port, "port", "p", 0, "kismet server port (overrides kismet.addr)")
	fs.StringVarP(&opts.output, "output", "o", "", "CSV file to record observations to")
	fs.StringVar(&opts.summarize, "summarize", "", "print a summary of a recorded CSV and exit")
	fs.StringVar(&opts.ssid, "ssid", record.Any, "SSID filter for --summarize")
	fs.StringVar(&opts.bssid, "bssid", record.Any, "BSSID filter for --summarize")

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if fs.NArg() > 0 {
		return options{}, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}
	if opts.port < 0 || opts.port > 65535 {
		return options{}, fmt.Errorf("invalid port %d", opts.port)
	}
	return opts, nil
}

func (o options) overrides() []config.Option {
	var out []config.Option
	if o.output != "" {
		out = append(out, func(c *config.Config) { c.Output.Path = o.output })
	}
	if o.server != "" || o.port != 0 {
		out = append(out, func(c *config.Config) {
			c.Kismet.Addr = overrideAddr(c.Kismet.Addr, o.server, o.port)
		})
	}
	return out
}

// overrideAddr replaces the host and/or port of addr.
func overrideAddr(addr, host string, port int) string {
	h, p, err := net.SplitHostPort(addr)
	if err != nil {
		h, p = addr, ""
	}
	if host != "" {
		h = host
	}
	if port != 0 {
		p = strconv.Itoa(port)
	}
	if p == "" {
		p = "2501"
	}
	return net.JoinHostPort(h, p)
}
