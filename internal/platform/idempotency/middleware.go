package idempotency

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/Yousefxll/HospitalOS2-sub009/internal/platform/apperror"
	"github.com/Yousefxll/HospitalOS2-sub009/internal/platform/auth"
	"github.com/Yousefxll/HospitalOS2-sub009/internal/platform/metrics"
)

const (
	HeaderKey      = "Idempotency-Key"
	HeaderReplayed = "Idempotent-Replayed"
	maxKeyLength   = 128
)

// replayedHeaders are response headers that describe the outcome and are
// stored with the body.
var replayedHeaders = []string{apperror.AuditDegradedHeader}

type Config struct {
	Store   Store
	TTL     time.Duration
	Logger  zerolog.Logger
	Metrics *metrics.Metrics
}

// Middleware answers a retried request from the stored response of the first
// successful one. Keys are scoped by tenant and route. The store is a fast
// path only; registration also carries the key to storage, so a store outage
// fails open.
func Middleware(cfg Config) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := c.Request().Header.Get(HeaderKey)
			if key == "" {
				return next(c)
			}
			if len(key) > maxKeyLength {
				return echo.NewHTTPError(http.StatusBadRequest, "Idempotency-Key too long")
			}

			caller, err := auth.CallerFrom(c)
			if err != nil {
				return err
			}
			scoped := caller.TenantID + ":" + c.Request().Method + ":" + c.Path() + ":" + key
			ctx := c.Request().Context()

			existing, reserved, err := cfg.Store.Reserve(ctx, scoped, cfg.TTL)
			if err != nil {
				cfg.Logger.Warn().Err(err).Str("idempotency_key", key).Msg("idempotency store unavailable")
				cfg.Metrics.ObserveIdempotency("store_error")
				return next(c)
			}
			if !reserved {
				if existing != nil && existing.Completed {
					cfg.Metrics.ObserveIdempotency("replay")
					for name, value := range existing.Headers {
						c.Response().Header().Set(name, value)
					}
					c.Response().Header().Set(HeaderReplayed, "true")
					return c.Blob(existing.Status, existing.ContentType, existing.Body)
				}
				cfg.Metrics.ObserveIdempotency("in_flight")
				return echo.NewHTTPError(http.StatusConflict, "a request with this Idempotency-Key is still in progress")
			}

			buf := new(bytes.Buffer)
			res := c.Response()
			original := res.Writer
			res.Writer = &captureWriter{Writer: io.MultiWriter(original, buf), ResponseWriter: original}
			defer func() { res.Writer = original }()

			herr := next(c)

			// The outcome is stored even if the client has gone away.
			bg := context.WithoutCancel(ctx)
			if herr == nil && res.Status >= 200 && res.Status < 300 {
				rec := Record{
					Status:      res.Status,
					ContentType: res.Header().Get(echo.HeaderContentType),
					Body:        buf.Bytes(),
				}
				for _, name := range replayedHeaders {
					if v := res.Header().Get(name); v != "" {
						if rec.Headers == nil {
							rec.Headers = make(map[string]string, len(replayedHeaders))
						}
						rec.Headers[name] = v
					}
				}
				if err := cfg.Store.Complete(bg, scoped, rec, cfg.TTL); err != nil {
					cfg.Logger.Warn().Err(err).Str("idempotency_key", key).Msg("store idempotent response")
				}
				cfg.Metrics.ObserveIdempotency("stored")
				return nil
			}
			if err := cfg.Store.Release(bg, scoped); err != nil {
				cfg.Logger.Warn().Err(err).Str("idempotency_key", key).Msg("release idempotency key")
			}
			return herr
		}
	}
}

type captureWriter struct {
	io.Writer
	http.ResponseWriter
}

func (w *captureWriter) Write(b []byte) (int, error) {
	return w.Writer.Write(b)
}

func (w *captureWriter) WriteHeader(code int) {
	w.ResponseWriter.WriteHeader(code)
}

func (w *captureWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
