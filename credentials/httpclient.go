package credentials

import (
	"net"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

const (
	credHTTPClientTimeout         = 20 * time.Second
	credHTTPDialTimeout           = 5 * time.Second
	credHTTPKeepAlive             = 30 * time.Second
	credHTTPTLSHandshakeTimeout   = 5 * time.Second
	credHTTPResponseHeaderTimeout = 10 * time.Second
	credHTTPExpectContinueTimeout = 1 * time.Second
	credHTTPIdleConnTimeout       = 90 * time.Second
)

var credHTTPTransport = &http.Transport{
	Proxy: http.ProxyFromEnvironment,
	DialContext: (&net.Dialer{
		Timeout:   credHTTPDialTimeout,
		KeepAlive: credHTTPKeepAlive,
	}).DialContext,
	TLSHandshakeTimeout:   credHTTPTLSHandshakeTimeout,
	ResponseHeaderTimeout: credHTTPResponseHeaderTimeout,
	ExpectContinueTimeout: credHTTPExpectContinueTimeout,
	IdleConnTimeout:       credHTTPIdleConnTimeout,
}

func newHTTPClient() *http.Client {
	return &http.Client{
		Timeout:   credHTTPClientTimeout,
		Transport: credHTTPTransport,
	}
}

func newRetryableHTTPClient(retryMax int) *http.Client {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = retryMax
	retryClient.Logger = nil
	retryClient.HTTPClient = newHTTPClient()

	return retryClient.StandardClient()
}
