// cmd/dynabus/main.go
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/halfduplex/dynabus/internal/bus"
	"github.com/halfduplex/dynabus/internal/config"
	"github.com/halfduplex/dynabus/internal/devtype"
	"github.com/halfduplex/dynabus/internal/script"
	"github.com/halfduplex/dynabus/internal/testbus"
)

const defaultDevTypeDir = "devtypes"

func main() {
	var (
		cfgPath  = flag.String("c", "", "config file (YAML)")
		port     = flag.String("p", os.Getenv("BIOLOID_PORT"), "serial port (default $BIOLOID_PORT)")
		baud     = flag.Int("b", 0, "baud rate")
		netAddr  = flag.String("n", "", "network host:port of a serial bridge")
		testMode = flag.Bool("t", false, "use the scripted test bus instead of real devices")
		filename = flag.String("f", "", "file of commands to process")
		debug    = flag.Bool("d", false, "show packets on the wire")
	)
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(),
			"usage: dynabus [options] [command]\n\nSend commands to dynamixel devices.\n\n")
		flag.PrintDefaults()
		fmt.Fprintf(flag.CommandLine.Output(),
			"\nThe BIOLOID_PORT environment variable supplies the default serial port.\n")
	}
	flag.Parse()

	// --------------------
	// Load + validate config, flags override
	// --------------------

	cfg := &config.Config{}
	if *cfgPath != "" {
		loaded, err := config.Load(*cfgPath)
		if err != nil {
			log.Fatalf("config load failed: %v", err)
		}
		cfg = loaded
	}
	if *port != "" {
		cfg.Bus.Port = *port
	}
	if *netAddr != "" {
		cfg.Bus.Net = *netAddr
	}
	if *baud != 0 {
		cfg.Bus.Baud = *baud
	}
	if *debug {
		cfg.Bus.ShowPackets = true
	}
	if err := config.Validate(cfg); err != nil {
		log.Fatalf("config validation failed: %v", err)
	}
	config.Normalize(cfg)

	if !*testMode && cfg.Bus.Port == "" && cfg.Bus.Net == "" {
		log.Fatal("must specify one of serial (-p), network (-n), or test (-t)")
	}

	// --------------------
	// Device types
	// --------------------

	registry := devtype.NewRegistry()
	parser := devtype.NewParser(registry)
	paths := cfg.DeviceTypes
	if len(paths) == 0 {
		paths = []string{defaultDevTypeDir}
	}
	for _, path := range paths {
		if err := parser.ParseFile(path); err != nil {
			log.Fatalf("device type load failed: %v", err)
		}
	}

	// --------------------
	// Bus + transactor
	// --------------------

	timeout := time.Duration(cfg.Bus.TimeoutMs) * time.Millisecond

	var link bus.Bus
	var tb *testbus.Bus
	switch {
	case *testMode:
		tb = testbus.New()
		link = tb
	case cfg.Bus.Net != "":
		b, err := bus.DialTCP(bus.TCPConfig{
			Endpoint:    cfg.Bus.Net,
			ShowPackets: cfg.Bus.ShowPackets,
		})
		if err != nil {
			log.Fatalf("bus dial failed: %v", err)
		}
		defer b.Close()
		link = b
	default:
		b, err := bus.OpenSerial(bus.SerialConfig{
			Port:        cfg.Bus.Port,
			Baud:        cfg.Bus.Baud,
			ReadTimeout: timeout,
			ShowPackets: cfg.Bus.ShowPackets,
		})
		if err != nil {
			log.Fatalf("bus open failed: %v", err)
		}
		defer b.Close()
		link = b
	}

	trans, err := bus.NewTransactor(link, timeout)
	if err != nil {
		log.Fatalf("transactor build failed: %v", err)
	}

	runner, err := script.NewRunner(script.Options{
		Registry: registry,
		Trans:    trans,
		TestBus:  tb,
		Out:      os.Stdout,
	})
	if err != nil {
		log.Fatalf("runner build failed: %v", err)
	}

	// --------------------
	// Execute script file or one-shot command
	// --------------------

	switch {
	case *filename != "":
		f, err := os.Open(*filename)
		if err != nil {
			log.Fatalf("script open failed: %v", err)
		}
		err = runner.RunScript(f)
		f.Close()
		if err != nil {
			log.Fatalf("script read failed: %v", err)
		}
	case flag.NArg() > 0:
		if err := runner.RunLine(strings.Join(flag.Args(), " ")); err != nil {
			log.Printf("Error: %v", err)
			os.Exit(1)
		}
	default:
		log.Fatal("no command given; use -f for a script file or pass a command")
	}

	finishErr := runner.Finish()
	if *testMode {
		passed, failed := runner.Counts()
		log.Print("--------------------------")
		log.Printf("Passed: %d Failed: %d", passed, failed)
	}
	if finishErr != nil {
		log.Printf("Error: %v", finishErr)
		os.Exit(1)
	}
}
