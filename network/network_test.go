package network

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/netip"
	"net/url"
	"testing"
	"time"

	"golang.org/x/net/nettest"
)

func TestCreateTCPConnectedSocket(t *testing.T) {
	ln, err := nettest.NewLocalListener("tcp4")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err == nil {
			accepted <- c
		}
	}()
	nc, err := NewContext()
	if err != nil {
		t.Fatal(err)
	}
	addr := netip.MustParseAddrPort(ln.Addr().String())
	conn, err := nc.CreateTCPConnectedSocket(context.Background(), addr)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	select {
	case c := <-accepted:
		c.Close()
	case <-time.After(5 * time.Second):
		t.Fatal("listener never accepted")
	}
}

func TestConnectRefused(t *testing.T) {
	ln, err := nettest.NewLocalListener("tcp4")
	if err != nil {
		t.Fatal(err)
	}
	addr := netip.MustParseAddrPort(ln.Addr().String())
	ln.Close()
	nc, _ := NewContext()
	if _, err := nc.CreateTCPConnectedSocket(context.Background(), addr); err == nil {
		t.Fatal("expected connect error")
	}
}

func TestUpgradeToTLSFailureClosesConn(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()
	go io.Copy(io.Discard, server)
	go server.Write([]byte("not tls at all"))
	nc, _ := NewContext()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := nc.UpgradeToTLS(ctx, client, &tls.Config{InsecureSkipVerify: true}); err == nil {
		t.Fatal("expected handshake error")
	}
	if _, err := client.Write([]byte{1}); err == nil {
		t.Error("conn should be closed after failed handshake")
	}
}

func TestProxy(t *testing.T) {
	u, _ := url.Parse("socks5://127.0.0.1:1080")
	if _, err := NewContext(WithProxy(u)); err != nil {
		t.Fatal(err)
	}
	u, _ = url.Parse("gopher://127.0.0.1:70")
	if _, err := NewContext(WithProxy(u)); err == nil {
		t.Fatal("expected unknown scheme error")
	}
}
