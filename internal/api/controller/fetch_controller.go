package controller

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/bassista/go_pantry/internal/logger"
	"github.com/bassista/go_pantry/internal/runtime"
	"github.com/gin-gonic/gin"
)

// EdgeHeader tells the client how the edge produced a response.
const EdgeHeader = "X-Offline-Edge"

// FetchDispatcher turns an intercepted request into a fetch event.
type FetchDispatcher interface {
	DispatchFetch(r *http.Request) (*runtime.Response, error)
}

type FetchController struct {
	host FetchDispatcher
}

func NewFetchController(host FetchDispatcher) *FetchController {
	return &FetchController{host: host}
}

// hop-by-hop headers are never forwarded to the client
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
	"Content-Length",
}

// Handle serves every request no API route claimed through the worker.
func (fc *FetchController) Handle(c *gin.Context) {
	resp, err := fc.host.DispatchFetch(c.Request)
	if err != nil {
		if errors.Is(err, context.Canceled) && c.Request.Context().Err() != nil {
			// client went away
			c.Abort()
			return
		}
		logger.WithComponent("fetch_controller").Warnf("%s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		c.Header(EdgeHeader, "network-error")
		c.JSON(http.StatusBadGateway, gin.H{"error": "origin unreachable"})
		return
	}

	header := c.Writer.Header()
	for k, vs := range resp.Header {
		if isHopHeader(k) {
			continue
		}
		for _, v := range vs {
			header.Add(k, v)
		}
	}
	header.Set(EdgeHeader, resp.Source)

	status := resp.Status
	if status == 0 {
		// opaque cached responses carry no status
		status = http.StatusOK
	}
	c.Status(status)
	if c.Request.Method == http.MethodHead || len(resp.Body) == 0 {
		c.Writer.WriteHeaderNow()
		return
	}
	if _, err := c.Writer.Write(resp.Body); err != nil {
		logger.WithComponent("fetch_controller").Debugf("write response body: %v", err)
	}
}

func isHopHeader(name string) bool {
	for _, h := range hopHeaders {
		if strings.EqualFold(h, name) {
			return true
		}
	}
	return false
}
