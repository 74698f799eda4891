// Command relayd runs a single IRC server: it accepts client connections,
// tracks nicks/users/channels in memory, and relays PRIVMSG/JOIN/PART/QUIT
// traffic between them.
package main

import (
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"

	"github.com/nullslate/relayd/internal/config"
	"github.com/nullslate/relayd/internal/relay"
)

type args struct {
	ConfigFile string
	ListenAddr string
}

func getArgs() *args {
	configFile := flag.String("conf", "", "Configuration file.")
	listenAddr := flag.String(
		"listen",
		"",
		"Address to listen on. Overrides listen-host/listen-port from config.",
	)

	flag.Parse()

	if len(*configFile) == 0 {
		printUsage(fmt.Errorf("you must provide a configuration file"))
		return nil
	}

	configPath, err := filepath.Abs(*configFile)
	if err != nil {
		printUsage(fmt.Errorf("unable to determine path to the configuration file: %s", err))
		return nil
	}

	return &args{
		ConfigFile: configPath,
		ListenAddr: *listenAddr,
	}
}

func printUsage(err error) {
	_, _ = fmt.Fprintf(os.Stderr, "%s\n", err)
	_, _ = fmt.Fprintf(os.Stderr, "Usage: %s <arguments>\n", os.Args[0])
	flag.PrintDefaults()
}

func main() {
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)

	a := getArgs()
	if a == nil {
		os.Exit(1)
	}

	cfg, err := config.Load(a.ConfigFile)
	if err != nil {
		log.Fatalf("unable to load configuration: %s", err)
	}

	listenAddr := a.ListenAddr
	if listenAddr == "" {
		listenAddr = net.JoinHostPort(cfg.ListenHost, cfg.ListenPort)
	}

	ln, err := net.Listen("tcp", listenAddr)
	if err != nil {
		log.Fatalf("unable to listen on %s: %s", listenAddr, err)
	}
	log.Printf("listening on %s", listenAddr)

	core := relay.NewCore(cfg)

	reaper := relay.NewIdleReaper(cfg, core.LiveClients)
	stopReaper := make(chan struct{})
	go reaper.Run(stopReaper)

	if err := core.Listen(ln); err != nil {
		log.Fatalf("accept loop exited: %s", err)
	}
}
