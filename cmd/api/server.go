package main

import (
	"context"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"fintrack/internal/shared/config"
	"fintrack/internal/shared/middleware"
)

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Handler      http.Handler
	Addr         string
	TLSEnabled   bool
	CertPath     string
	KeyPath      string
	RedirectHTTP bool
	AllowedHosts []string
	// MaxUploadBytes sizes the read timeout so a slow receipt upload at the
	// limit is not cut off.
	MaxUploadBytes int64
}

// servers is the running API plus the optional :80 redirect listener.
type servers struct {
	api      *http.Server
	redirect *http.Server
	errCh    chan error
}

// readTimeout allows 30s plus one second per 256 KiB of the upload limit,
// capped at five minutes.
func readTimeout(maxUploadBytes int64) time.Duration {
	d := 30*time.Second + time.Duration(maxUploadBytes/(256<<10))*time.Second
	if d > 5*time.Minute {
		return 5 * time.Minute
	}
	return d
}

// StartServers starts the API server and, when TLS redirects are on, the
// redirect server. A fatal API server error is delivered on Err.
func StartServers(scfg ServerConfig, logger *zap.Logger) *servers {
	s := &servers{
		api: &http.Server{
			Addr:              scfg.Addr,
			Handler:           scfg.Handler,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       readTimeout(scfg.MaxUploadBytes),
			WriteTimeout:      60 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		errCh: make(chan error, 1),
	}

	if scfg.TLSEnabled && scfg.RedirectHTTP {
		s.redirect = &http.Server{
			Addr:         ":80",
			Handler:      redirectHandler(scfg.AllowedHosts),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		}
		go func() {
			logger.Info("HTTP redirect server starting", zap.String("addr", s.redirect.Addr))
			if err := s.redirect.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("HTTP redirect server error", zap.Error(err))
			}
		}()
	}

	go func() {
		var err error
		if scfg.TLSEnabled {
			logger.Info("HTTPS server starting", zap.String("addr", scfg.Addr))
			err = s.api.ListenAndServeTLS(scfg.CertPath, scfg.KeyPath)
		} else {
			logger.Info("HTTP server starting", zap.String("addr", scfg.Addr))
			err = s.api.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			s.errCh <- err
		}
	}()

	return s
}

func (s *servers) Err() <-chan error { return s.errCh }

// Shutdown drains in-flight requests, redirect server first.
func (s *servers) Shutdown(timeout time.Duration, logger *zap.Logger) {
	logger.Info("Server shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if s.redirect != nil {
		if err := s.redirect.Shutdown(ctx); err != nil {
			logger.Error("Error shutting down HTTP redirect server", zap.Error(err))
		}
	}
	if err := s.api.Shutdown(ctx); err != nil {
		logger.Error("Error shutting down API server", zap.Error(err))
	}

	logger.Info("Server stopped")
}

func redirectHandler(allowedHosts []string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host := r.Header.Get("X-Forwarded-Host")
		if host == "" {
			host = r.Host
		}

		if !middleware.IsHostAllowed(host, allowedHosts) {
			http.Error(w, "Invalid host", http.StatusBadRequest)
			return
		}

		canonicalHost := host
		if h, _, err := net.SplitHostPort(host); err == nil {
			canonicalHost = h
			if ip := net.ParseIP(h); ip != nil && ip.To4() == nil {
				canonicalHost = "[" + h + "]"
			}
		}

		http.Redirect(w, r, "https://"+canonicalHost+r.RequestURI, http.StatusMovedPermanently)
	})
}

// NewServerConfigFromConfig creates ServerConfig from application config.
func NewServerConfigFromConfig(handler http.Handler, cfg *config.Config) ServerConfig {
	return ServerConfig{
		Handler:        handler,
		Addr:           cfg.Server.Host + ":" + cfg.Server.Port,
		TLSEnabled:     cfg.TLS.Enabled,
		CertPath:       cfg.TLS.CertPath,
		KeyPath:        cfg.TLS.KeyPath,
		RedirectHTTP:   cfg.TLS.RedirectHTTP,
		AllowedHosts:   cfg.Server.AllowedHosts,
		MaxUploadBytes: cfg.Receipts.MaxUploadBytes,
	}
}
