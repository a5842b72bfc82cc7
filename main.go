// Command ndefscan reads NDEF messages from NFC tags and shows what they
// carry. In serve mode it keeps running, broadcasting every session to
// WebSocket clients; in scan mode it reads one tag, prints it and exits.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/dotside-studios/ndefscan/buildinfo"
	"github.com/dotside-studios/ndefscan/certs"
	"github.com/dotside-studios/ndefscan/config"
	"github.com/dotside-studios/ndefscan/nfc"
	"github.com/dotside-studios/ndefscan/server"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg, err := config.Load(args)
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		log.Printf("Failed to load configuration: %v", err)
		return 2
	}
	if err := cfg.Validate(); err != nil {
		log.Printf("%v", err)
		return 2
	}
	log.Println(buildinfo.Summary())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opened, err := openRadio(cfg)
	if err != nil {
		log.Printf("Failed to open %s radio: %v", cfg.Radio, err)
		listDevices()
		return 1
	}
	defer opened.radio.Close()
	log.Printf("Using radio: %s", opened.name)

	agent, err := NewAgent(opened.radio, opened.name, cfg)
	if err != nil {
		log.Printf("Failed to create agent: %v", err)
		return 2
	}
	defer agent.Stop()
	agent.AddDisplay(NewPrinter(os.Stdout, cfg.Clipboard))

	if cfg.Mode == config.ModeScan {
		return scanOnce(ctx, agent)
	}
	if err := serve(ctx, cfg, agent, opened); err != nil {
		log.Printf("Server error: %v", err)
		return 1
	}
	log.Println("Shutdown complete")
	return 0
}

// scanOnce reads one tag. The exit status is non-zero unless a message was read.
func scanOnce(ctx context.Context, agent *Agent) int {
	r, err := agent.Scan(ctx)
	if err != nil {
		log.Printf("Scan interrupted: %v", err)
		return 130
	}
	if r.State != nfc.StateCompleted {
		return 1
	}
	return 0
}

// serve runs the HTTP and WebSocket server until ctx is cancelled.
func serve(ctx context.Context, cfg *config.Config, agent *Agent, opened *openedRadio) error {
	srvCfg := server.Config{
		Port:      cfg.Port,
		APISecret: cfg.APISecret,
		Scanner:   agent,
		MDNS:      cfg.MDNS,
	}
	if opened.remote != nil {
		srvCfg.DeviceHandler = opened.remote
		srvCfg.DeviceCount = opened.remote.DeviceCount
	}

	if cfg.TLS {
		manager := certs.NewManager(cfg.TLSDir)
		tlsConfig, err := manager.TLSConfig()
		if err != nil {
			return err
		}
		srvCfg.TLSConfig = tlsConfig

		bootstrap := certs.NewBootstrapServer(manager, cfg.Port+1)
		bootstrap.Start(ctx)
		defer bootstrap.Stop()
	}

	srv := server.New(srvCfg)
	agent.AddDisplay(serverDisplay{srv: srv})

	if cfg.Continuous {
		go func() {
			if err := agent.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("Continuous reading stopped: %v", err)
			}
		}()
	}
	return srv.Start(ctx)
}
