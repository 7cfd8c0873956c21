package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/yuru108/Retro-Messenger/pkg/server"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "~/.retro-messenger/config.toml", "Path to config file")
	tcpPort := flag.Int("port", 0, "TCP port (overrides config)")
	dbPath := flag.String("db", "", "Database path (overrides config)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		log.Printf("retro-server %s", version)
		return
	}

	if err := server.InitLoggers(); err != nil {
		log.Fatalf("Failed to initialize loggers: %v", err)
	}

	tomlConfig, err := server.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config from %s: %v", *configPath, err)
	}

	config := tomlConfig.ToServerConfig()
	if *tcpPort != 0 {
		config.TCPPort = *tcpPort
	}

	databasePath, err := tomlConfig.GetDatabasePath()
	if err != nil {
		log.Fatalf("Failed to resolve database path: %v", err)
	}
	if *dbPath != "" {
		databasePath = *dbPath
	}

	srv, err := server.NewServer(databasePath, config)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	if *debug {
		srv.EnableDebugLogging()
	}

	if err := srv.Start(); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
	log.Printf("retro-server %s ready on port %d (database: %s)", version, config.TCPPort, databasePath)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	log.Printf("Received signal %v, shutting down", sig)

	if err := srv.Stop(); err != nil {
		log.Fatalf("Shutdown error: %v", err)
	}
}
