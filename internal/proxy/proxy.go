package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"localchat/internal/metrics"
)

// statusClientClosed etiqueta en métricas los requests abandonados por el cliente.
const statusClientClosed = 499

type Options struct {
	Target  string
	Prefix  string
	Rewrite string
	Timeout time.Duration
	Logger  *zap.Logger
}

// New construye un reverse proxy que reemplaza Prefix por Rewrite y reenvía a Target.
func New(opts Options) (http.Handler, error) {
	target, err := url.Parse(opts.Target)
	if err != nil || target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("invalid proxy target %q", opts.Target)
	}
	if opts.Prefix == "" {
		opts.Prefix = "/api/rag"
	}
	if opts.Rewrite == "" {
		opts.Rewrite = "/api"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	prefix := strings.TrimRight(opts.Prefix, "/")
	rewrite := strings.TrimRight(opts.Rewrite, "/")

	rp := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.SetXForwarded()
			path := rewritePath(pr.In.URL.Path, prefix, rewrite)
			pr.Out.URL.Path = singleJoin(target.Path, path)
			pr.Out.URL.RawPath = ""
			pr.Out.Host = target.Host
		},
		ModifyResponse: func(resp *http.Response) error {
			metrics.ProxyRequestsTotal.WithLabelValues(resp.Request.Method, strconv.Itoa(resp.StatusCode)).Inc()
			return nil
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Error(err),
			}
			// Canceled viene del request entrante; el timeout propio da DeadlineExceeded.
			switch ctxErr := r.Context().Err(); {
			case errors.Is(ctxErr, context.Canceled):
				metrics.ProxyRequestsTotal.WithLabelValues(r.Method, strconv.Itoa(statusClientClosed)).Inc()
				logger.Debug("proxy client went away", fields...)
				return
			case errors.Is(ctxErr, context.DeadlineExceeded):
				logger.Warn("retrieval service timed out", fields...)
			default:
				logger.Warn("retrieval service unreachable", fields...)
			}
			metrics.ProxyUpstreamErrorsTotal.Inc()
			metrics.ProxyRequestsTotal.WithLabelValues(r.Method, strconv.Itoa(http.StatusServiceUnavailable)).Inc()
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"success": false,
				"message": "retrieval service unavailable",
			})
		},
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), opts.Timeout)
		defer cancel()
		rp.ServeHTTP(w, r.WithContext(ctx))
	}), nil
}

func rewritePath(path, prefix, rewrite string) string {
	rest := strings.TrimPrefix(path, prefix)
	if rest != "" && !strings.HasPrefix(rest, "/") {
		rest = "/" + rest
	}
	return rewrite + rest
}

func singleJoin(base, path string) string {
	base = strings.TrimRight(base, "/")
	if path == "" {
		path = "/"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return base + path
}
