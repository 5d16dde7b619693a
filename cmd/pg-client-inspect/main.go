package main

import (
	"fmt"
	"os"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/ybrs/postgres-protocol-debug-tools/internal/inspect"
)

func main() {
	host := flag.String("host", "127.0.0.1", "server host")
	port := flag.Int("port", 5432, "server port")
	user := flag.String("user", "", "user name (required)")
	database := flag.String("database", "", "database name (required)")
	query := flag.String("query", "", "SQL to run through the extended-query protocol (required)")
	password := flag.String("password", "", "password for cleartext or md5 authentication")
	binaryResult := flag.Bool("binary-result", true, "request binary result format")
	timeoutSeconds := flag.Int("timeout-seconds", 10, "socket read/write timeout")
	flag.Parse()

	if *user == "" || *database == "" || *query == "" {
		fmt.Fprintln(os.Stderr, "error: --user, --database and --query are required")
		os.Exit(1)
	}

	opts := inspect.Options{
		Host:         *host,
		Port:         *port,
		User:         *user,
		Database:     *database,
		Query:        *query,
		Password:     *password,
		BinaryResult: *binaryResult,
		Timeout:      time.Duration(*timeoutSeconds) * time.Second,
	}

	if err := inspect.Run(opts, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
