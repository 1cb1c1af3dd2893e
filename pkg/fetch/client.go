package fetch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/proxy"

	"github.com/Sriram-PR/catalog-scraper/pkg/config"
	"github.com/Sriram-PR/catalog-scraper/pkg/utils"
)

// NewClient creates a new HTTP client based on the provided configuration.
// When proxyAddress is set every connection is tunnelled through that SOCKS5 proxy (e.g. Tor).
func NewClient(cfg config.HTTPClientConfig, proxyAddress string, log *logrus.Entry) (*http.Client, error) {
	log.Info("Initializing HTTP client...")

	// Create custom dialer with configured timeouts
	dialer := &net.Dialer{
		Timeout:   cfg.DialerTimeout,
		KeepAlive: cfg.DialerKeepAlive,
	}

	transport := &http.Transport{
		Proxy:                  http.ProxyFromEnvironment, // Use system proxy settings
		DialContext:            dialer.DialContext,
		ForceAttemptHTTP2:      true,
		MaxIdleConns:           cfg.MaxIdleConns,
		MaxIdleConnsPerHost:    cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:        cfg.IdleConnTimeout,
		TLSHandshakeTimeout:    cfg.TLSHandshakeTimeout,
		ExpectContinueTimeout:  cfg.ExpectContinueTimeout,
		MaxResponseHeaderBytes: 1 << 20,
	}
	if cfg.ForceAttemptHTTP2 != nil {
		transport.ForceAttemptHTTP2 = *cfg.ForceAttemptHTTP2
	}

	if proxyAddress != "" {
		dialContext, err := socksDialContext(proxyAddress, dialer)
		if err != nil {
			return nil, err
		}
		transport.Proxy = nil // SOCKS replaces any environment proxy
		transport.DialContext = dialContext
		log.WithField("proxy", proxyAddress).Info("Routing requests through SOCKS5 proxy")
	}

	client := &http.Client{
		Timeout:   cfg.Timeout,
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return errors.New("stopped after 10 redirects")
			}
			log.Debugf("Redirecting: %s -> %s (hop %d)", via[len(via)-1].URL, req.URL, len(via))
			return nil
		},
	}
	log.Info("HTTP client initialized.")
	return client, nil
}

// socksDialContext builds a context-aware dial function through a SOCKS5 proxy
func socksDialContext(proxyAddress string, forward *net.Dialer) (func(ctx context.Context, network, addr string) (net.Conn, error), error) {
	if !isValidProxyAddress(proxyAddress) {
		return nil, fmt.Errorf("%w: invalid proxy address %q, want host:port", utils.ErrConfigValidation, proxyAddress)
	}
	// Tor's SOCKS port does not require auth
	d, err := proxy.SOCKS5("tcp", proxyAddress, nil, forward)
	if err != nil {
		return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
	}
	if cd, ok := d.(proxy.ContextDialer); ok {
		return cd.DialContext, nil
	}
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return d.Dial(network, addr)
	}, nil
}

// isValidProxyAddress checks for a "host:port" address with a port in 1-65535
func isValidProxyAddress(address string) bool {
	host, port, err := net.SplitHostPort(address)
	if err != nil || host == "" {
		return false
	}
	n, err := strconv.Atoi(port)
	return err == nil && n >= 1 && n <= 65535
}
