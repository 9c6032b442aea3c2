package main

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"path/filepath"

	"go2tv.app/castsync/media"
)

// serveLocalFile exposes a local file over a throwaway HTTP listener the
// receiver can reach and returns the URL to cast plus a shutdown func. The
// content type comes from sniffing the file head, not from its extension.
// The served URL carries a query parameter so the authenticated reference
// built by the coordinator stays well formed.
func serveLocalFile(path, deviceAddr string) (string, func(), error) {
	contentType, err := media.DetectFile(path)
	if err != nil {
		return "", nil, fmt.Errorf("serveLocalFile: %w", err)
	}

	host, err := listenHostFor(deviceAddr)
	if err != nil {
		return "", nil, fmt.Errorf("serveLocalFile: %w", err)
	}

	ln, err := net.Listen("tcp", net.JoinHostPort(host, "0"))
	if err != nil {
		return "", nil, fmt.Errorf("serveLocalFile listen: %w", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/media", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", contentType)
		http.ServeFile(w, r, path)
	})

	srv := &http.Server{Handler: mux}
	go func() {
		_ = srv.Serve(ln)
	}()

	name := &url.URL{Path: filepath.Base(path)}
	served := fmt.Sprintf("http://%s/media?name=%s", ln.Addr().String(), name.String())
	return served, func() { _ = srv.Close() }, nil
}

// listenHostFor returns the local address the receiver at deviceAddr can
// reach us on, derived from the outbound route towards it.
func listenHostFor(deviceAddr string) (string, error) {
	hostport := deviceAddr
	if _, _, err := net.SplitHostPort(hostport); err != nil {
		hostport = net.JoinHostPort(hostport, "8009")
	}

	conn, err := net.Dial("udp", hostport)
	if err != nil {
		return "", fmt.Errorf("listenHostFor: %w", err)
	}
	defer conn.Close()

	localAddr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return "", fmt.Errorf("listenHostFor: unexpected local address %v", conn.LocalAddr())
	}
	return localAddr.IP.String(), nil
}
