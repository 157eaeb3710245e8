// Package api serves read-only run state over HTTP: past runs, their job
// instance results, and the artifacts each run produced.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/skarzi/matrixci/internal/artifact"
	"github.com/skarzi/matrixci/internal/engine"
)

type Server struct {
	stateDir string
	verbose  bool
}

func NewServer(stateDir string, verbose bool) (*Server, error) {
	if stateDir == "" {
		return nil, fmt.Errorf("state directory required")
	}
	return &Server{stateDir: stateDir, verbose: verbose}, nil
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	if s.verbose {
		r.Use(middleware.Logger)
	}
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/runs", func(r chi.Router) {
		r.Get("/", s.handleListRuns)
		r.Route("/{runID}", func(r chi.Router) {
			r.Get("/", s.handleGetRun)
			r.Get("/artifacts", s.handleListArtifacts)
			r.Get("/artifacts/{name}/files/*", s.handleGetArtifactFile)
		})
	})

	return r
}

// ListenAndServe blocks until the context is canceled, then shuts the server
// down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := srv.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (s *Server) handleListRuns(w http.ResponseWriter, _ *http.Request) {
	records, err := engine.ListRunRecords(s.stateDir)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if records == nil {
		records = []*engine.RunRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	rec, err := engine.ReadRunRecord(s.stateDir, runID)
	if err != nil {
		if os.IsNotExist(err) {
			writeError(w, http.StatusNotFound, fmt.Errorf("run %s not found", runID))
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleListArtifacts(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	store, err := s.artifactStore(runID)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	infos, err := store.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if infos == nil {
		infos = []*artifact.Info{}
	}
	writeJSON(w, http.StatusOK, infos)
}

func (s *Server) handleGetArtifactFile(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	name := chi.URLParam(r, "name")
	file := chi.URLParam(r, "*")

	store, err := s.artifactStore(runID)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	info, err := store.Stat(name)
	if err != nil {
		writeError(w, http.StatusNotFound, fmt.Errorf("artifact %q not found in run %s", name, runID))
		return
	}
	found := false
	for _, f := range info.Files {
		if f == file {
			found = true
			break
		}
	}
	if !found {
		writeError(w, http.StatusNotFound, fmt.Errorf("file %q not in artifact %q", file, name))
		return
	}
	http.ServeFile(w, r, store.Path(name, file))
}

// artifactStore opens the run's artifact store without creating state for
// unknown runs.
func (s *Server) artifactStore(runID string) (*artifact.Store, error) {
	if _, err := engine.ReadRunRecord(s.stateDir, runID); err != nil {
		return nil, fmt.Errorf("run %s not found", runID)
	}
	return artifact.NewStore(engine.ArtifactDir(s.stateDir, runID))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
