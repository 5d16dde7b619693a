package health

import (
	"net"
	"testing"
	"time"

	"github.com/ybrs/postgres-protocol-debug-tools/internal/metrics"
)

func TestCheckerReportsHealthyUpstream(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	c := NewChecker(ln.Addr().String(), metrics.New())
	c.Start()
	defer c.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for !c.IsHealthy() {
		if time.Now().After(deadline) {
			t.Fatal("checker never reported healthy")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestCheckerReportsUnreachableUpstream(t *testing.T) {
	// Bind and immediately close to get a port that refuses connections.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	c := NewChecker(addr, metrics.New())
	c.Start()
	defer c.Stop()

	time.Sleep(100 * time.Millisecond)
	if c.IsHealthy() {
		t.Error("checker reported a closed port as healthy")
	}
}
