package llm

import (
	"context"
	"net/http"
	"time"
)

// Provider produces a completion for a conversation. Implementations are
// synchronous; enrichment callers run them on their own goroutines.
type Provider interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// doWithRetry issues the request, retrying transient failures (network
// errors, 429, 5xx) with a short backoff. The request is rebuilt per attempt
// because the body reader is consumed.
func doWithRetry(ctx context.Context, client *http.Client, build func() (*http.Request, error)) (*http.Response, error) {
	const attempts = 3
	var resp *http.Response
	var err error
	for i := 0; i < attempts; i++ {
		var req *http.Request
		req, err = build()
		if err != nil {
			return nil, err
		}
		resp, err = client.Do(req)
		if err == nil && resp.StatusCode != http.StatusTooManyRequests && resp.StatusCode < 500 {
			return resp, nil
		}
		if resp != nil {
			resp.Body.Close()
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(i+1) * 500 * time.Millisecond):
		}
	}
	if err != nil {
		return nil, err
	}
	return resp, nil
}
