// Package authflow implements the browser-based key handoff used by
// interactive setup: a one-shot loopback HTTP server receives the
// callback from the web console and surfaces its query parameters.
package authflow

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os/exec"
	"runtime"
	"time"
)

// Result holds the query parameters of the callback request.
type Result struct {
	Query url.Values
}

// APIKey returns the api_key parameter, if present.
func (r *Result) APIKey() string {
	return r.Query.Get("api_key")
}

// Capture starts a loopback server on an ephemeral port, opens the
// browser at consoleURL with the callback address attached, and waits for
// the first callback request or ctx cancellation.
func Capture(ctx context.Context, consoleURL string) (*Result, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("listen on loopback: %w", err)
	}

	callbackURL := fmt.Sprintf("http://%s/callback", ln.Addr().String())
	results := make(chan *Result, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprint(w, "Logged in successfully! You can close this tab.")
		select {
		case results <- &Result{Query: r.URL.Query()}:
		default:
		}
	})

	srv := &http.Server{Handler: mux}
	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Warn("callback server error", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	target := consoleURL
	if u, err := url.Parse(consoleURL); err == nil {
		q := u.Query()
		q.Set("callback", callbackURL)
		u.RawQuery = q.Encode()
		target = u.String()
	}

	if err := openBrowser(target); err != nil {
		slog.Warn("could not open browser, open manually", "url", target, "error", err)
	}
	fmt.Println("Waiting for login at", target)

	select {
	case res := <-results:
		return res, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func openBrowser(target string) error {
	switch runtime.GOOS {
	case "darwin":
		return exec.Command("open", target).Start()
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", target).Start()
	default:
		return exec.Command("xdg-open", target).Start()
	}
}
