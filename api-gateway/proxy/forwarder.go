// Package proxy forwards gateway requests to the backing services.
package proxy

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yashrajoria/commerce-core/services/common/middleware"
)

// hopHeaders are meaningful only for a single connection and are never
// copied across the proxy.
var hopHeaders = map[string]bool{
	"connection":          true,
	"keep-alive":          true,
	"proxy-authenticate":  true,
	"proxy-authorization": true,
	"te":                  true,
	"trailers":            true,
	"transfer-encoding":   true,
	"upgrade":             true,
}

// Forwarder relays a request to one upstream base URL.
type Forwarder struct {
	client *http.Client
	logger *zap.Logger
}

func NewForwarder(timeout time.Duration, logger *zap.Logger) *Forwarder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Forwarder{client: &http.Client{Timeout: timeout}, logger: logger}
}

// To returns a handler that appends the "any" wildcard (if present) to
// targetBase and relays the request there.
func (f *Forwarder) To(targetBase string) gin.HandlerFunc {
	return func(c *gin.Context) {
		f.forward(c, targetBase+c.Param("any"))
	}
}

func (f *Forwarder) forward(c *gin.Context, targetURL string) {
	if c.Request.URL.RawQuery != "" {
		targetURL += "?" + c.Request.URL.RawQuery
	}

	req, err := http.NewRequestWithContext(c.Request.Context(), c.Request.Method, targetURL, c.Request.Body)
	if err != nil {
		f.logger.Error("Failed to create forward request", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create request"})
		return
	}
	for k, v := range c.Request.Header {
		if !hopHeaders[strings.ToLower(k)] {
			req.Header[k] = v
		}
	}
	if id, ok := c.Get(middleware.RequestIDKey); ok {
		if s, ok := id.(string); ok {
			req.Header.Set(middleware.RequestIDHeader, s)
		}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		f.logger.Error("Failed to forward request", zap.String("url", targetURL), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "service unreachable"})
		return
	}
	defer resp.Body.Close()

	for k, v := range resp.Header {
		lk := strings.ToLower(k)
		// CORS is answered by the gateway itself.
		if strings.HasPrefix(lk, "access-control-") || hopHeaders[lk] {
			continue
		}
		c.Header(k, strings.Join(v, ","))
	}
	c.Status(resp.StatusCode)

	if _, err := io.Copy(c.Writer, resp.Body); err != nil {
		f.logger.Warn("Failed to copy response body", zap.Error(err))
	}
}
