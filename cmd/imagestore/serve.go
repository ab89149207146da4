package main

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	imagestore "github.com/Skryldev/image-store"
	apperrors "github.com/Skryldev/image-store/errors"
)

func newServeCmd(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve stored files, lazy variant redirects and metrics over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := a.ensureStore()
			if err != nil {
				return err
			}
			a.reg.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)
			s.Start()

			srv := &http.Server{
				Addr:              addr,
				Handler:           newHandler(s, a.cfg.RootURI, promhttp.HandlerFor(a.reg, promhttp.HandlerOpts{})),
				ReadHeaderTimeout: 10 * time.Second,
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() { errCh <- srv.ListenAndServe() }()
			a.logger.Info("serve.listening", "addr", addr, "root", s.Root(), "uri", a.cfg.RootURI)

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-ctx.Done():
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			a.logger.Info("serve.shutdown")
			return srv.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	return cmd
}

// newHandler routes:
//
//	GET <rootURI>/...   stored originals and variants
//	GET /variant        302 to the variant locator, computing it if needed
//	GET /metrics        Prometheus exposition
func newHandler(s *imagestore.Store, rootURI string, metrics http.Handler) http.Handler {
	// Locators may be absolute URLs pointing at this server; only the path routes.
	if u, err := url.Parse(rootURI); err == nil {
		rootURI = u.Path
	}
	prefix := strings.TrimRight(rootURI, "/")
	files := afero.NewHttpFs(s.Fs()).Dir(s.Root())
	mux := http.NewServeMux()
	mux.Handle("GET "+prefix+"/", http.StripPrefix(prefix, http.FileServer(files)))
	mux.Handle("GET /metrics", metrics)
	mux.HandleFunc("GET /variant", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		loc, err := s.Variant(r.Context(), q.Get("id"), q.Get("width"), q.Get("height"), q["option"]...)
		if err != nil {
			http.Error(w, err.Error(), statusFor(err))
			return
		}
		http.Redirect(w, r, loc, http.StatusFound)
	})
	return mux
}

func statusFor(err error) int {
	switch apperrors.CategoryOf(err) {
	case apperrors.CategoryValidation:
		return http.StatusBadRequest
	case apperrors.CategoryNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
