package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// NewHTTPRequestTool creates the http_request tool. Outbound calls are
// rate limited so a looping agent cannot flood an external host.
func NewHTTPRequestTool() *Tool {
	client := &http.Client{Timeout: 30 * time.Second}
	limiter := rate.NewLimiter(rate.Every(time.Second), 5)

	return &Tool{
		Name:        "http_request",
		Description: "Performs a single outbound HTTP call and returns the raw response body.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"method": map[string]any{"type": "string", "description": "HTTP method (GET, POST, ...)"},
				"url":    map[string]any{"type": "string", "description": "Target URL"},
				"body":   map[string]any{"type": "string", "description": "Optional request body"},
			},
			"required": []string{"method", "url"},
		},
		Execute: func(args map[string]any) (string, error) {
			method, _ := stringArg(args, "method")
			if method == "" {
				method = http.MethodGet
			}
			targetURL, ok := stringArg(args, "url")
			if !ok || targetURL == "" {
				return "HTTP Error: missing url", nil
			}
			body, _ := stringArg(args, "body", "data")

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			if err := limiter.Wait(ctx); err != nil {
				return fmt.Sprintf("HTTP Error: %v", err), nil
			}

			var reader io.Reader
			if body != "" {
				reader = strings.NewReader(body)
			}
			req, err := http.NewRequestWithContext(ctx, strings.ToUpper(method), targetURL, reader)
			if err != nil {
				return fmt.Sprintf("HTTP Error: %v", err), nil
			}

			resp, err := client.Do(req)
			if err != nil {
				return fmt.Sprintf("HTTP Error: %v", err), nil
			}
			defer resp.Body.Close()

			data, err := io.ReadAll(resp.Body)
			if err != nil {
				return fmt.Sprintf("HTTP Error: %v", err), nil
			}
			return string(data), nil
		},
	}
}
