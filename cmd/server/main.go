package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/mnohosten/flamestore/pkg/server"
)

func main() {
	host := flag.String("host", "localhost", "Server host address")
	port := flag.Int("port", 8080, "Server port")
	corsOrigin := flag.String("cors-origin", "*", "CORS allowed origin")
	logFormat := flag.String("log-format", "text", "Log format (text or json)")
	enforceRules := flag.Bool("rules", true, "Enforce security rules on document operations")
	rulesFile := flag.String("rules-file", "", "Security rules source loaded at startup")
	enableGraphQL := flag.Bool("graphql", false, "Enable the GraphQL browse endpoint (/graphql)")
	enableMetrics := flag.Bool("metrics", true, "Expose Prometheus metrics on /metrics")
	txnIdle := flag.Duration("txn-idle-timeout", 5*time.Minute, "Transaction idle timeout")
	flag.Parse()

	config := server.DefaultConfig()
	config.Host = *host
	config.Port = *port
	config.AllowedOrigins = []string{*corsOrigin}
	config.LogFormat = *logFormat
	config.EnforceRules = *enforceRules
	config.RulesFile = *rulesFile
	config.EnableGraphQL = *enableGraphQL
	config.EnableMetrics = *enableMetrics
	config.TxnIdleTimeout = *txnIdle

	srv, err := server.New(config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create server: %v\n", err)
		os.Exit(1)
	}

	if err := srv.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		os.Exit(1)
	}
}
