package probe

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"time"
)

// maxBodySample bounds how much of a response body is fed to the classifier.
const maxBodySample = 2048

// HTTPChecker polls an HTTP readiness endpoint. Its raw output has the form
// "status=<code> body=<sample>" on a response, or "error=<message>" on a
// transport failure, so classify rules can match either.
type HTTPChecker struct {
	URL      string
	Username string
	Password string

	// Insecure skips TLS verification for self-signed bootstrap certs.
	Insecure bool

	// Client overrides the HTTP client, mainly for tests.
	Client *http.Client
}

// Check implements the Checker interface.
func (h *HTTPChecker) Check(ctx context.Context) string {
	client := h.Client
	if client == nil {
		transport := &http.Transport{}
		if h.Insecure {
			transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		}
		client = &http.Client{
			Timeout:   10 * time.Second,
			Transport: transport,
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.URL, nil)
	if err != nil {
		return fmt.Sprintf("error=%v", err)
	}
	if h.Username != "" {
		req.SetBasicAuth(h.Username, h.Password)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Sprintf("error=%v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodySample))
	return fmt.Sprintf("status=%d body=%s", resp.StatusCode, string(body))
}
