package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"coineda/importer"
	"coineda/portfolio"
	"coineda/storage"
	"coineda/tax"
)

type server struct {
	store      storage.Store
	importer   *importer.Importer
	calculator tax.Calculator
	log        zerolog.Logger
}

func runServer(ctx context.Context, port string, store storage.Store, imp *importer.Importer, calc tax.Calculator, log zerolog.Logger) {
	s := &server{store: store, importer: imp, calculator: calc, log: log}

	srv := &http.Server{Addr: ":" + port, Handler: s.routes()}

	go func() {
		log.Info().Str("port", port).Msg("HTTP API listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	select {
	case <-stop:
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown failed")
	}
	if m, ok := s.store.(*storage.Memory); ok {
		if err := m.Save(); err != nil {
			log.Error().Err(err).Msg("saving store on shutdown")
		}
	}
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /import", s.handleImport)
	mux.HandleFunc("GET /transactions", s.handleListTransactions)
	mux.HandleFunc("POST /transactions", s.handleCreateTransaction)
	mux.HandleFunc("DELETE /transactions/{id}", s.handleDeleteTransaction)
	mux.HandleFunc("GET /transfers", s.handleListTransfers)
	mux.HandleFunc("POST /transfers", s.handleCreateTransfer)
	mux.HandleFunc("GET /tax/{account}", s.handleTax)

	return requestID(logRequests(s.log)(recovery(s.log)(cors(mux))))
}

func (s *server) handleImport(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart request")
		return
	}
	account, err := strconv.ParseInt(r.FormValue("account"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "account is required")
		return
	}

	var files []portfolio.File
	for _, headers := range r.MultipartForm.File {
		for _, h := range headers {
			f, err := h.Open()
			if err != nil {
				writeError(w, http.StatusBadRequest, "cannot read uploaded file")
				return
			}
			data, err := io.ReadAll(f)
			f.Close()
			if err != nil {
				writeError(w, http.StatusBadRequest, "cannot read uploaded file")
				return
			}
			files = append(files, portfolio.File{Name: h.Filename, Data: data})
		}
	}
	if len(files) == 0 {
		writeError(w, http.StatusBadRequest, "no files uploaded")
		return
	}

	sum := s.importer.ImportFiles(r.Context(), files, account)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"inserts":    sum.Inserts,
		"duplicates": sum.Duplicates,
		"errors":     importErrors(sum.Errors),
	})
	s.saveStore()
}

func importErrors(errs []portfolio.ImportError) []map[string]string {
	out := make([]map[string]string, 0, len(errs))
	for _, e := range errs {
		entry := map[string]string{
			"type":     string(e.Kind),
			"filename": e.Filename,
			"source":   e.Source,
		}
		if e.Err != nil {
			entry["detail"] = e.Err.Error()
		}
		out = append(out, entry)
	}
	return out
}

func (s *server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	account, ok := accountParam(w, r)
	if !ok {
		return
	}
	txs, err := s.store.Transactions().GetAllFromAccount(account)
	if err != nil {
		s.log.Error().Err(err).Msg("listing transactions")
		writeError(w, http.StatusInternalServerError, "cannot list transactions")
		return
	}
	writeJSON(w, http.StatusOK, txs)
}

func (s *server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var tx portfolio.Transaction
	if err := json.NewDecoder(r.Body).Decode(&tx); err != nil {
		writeError(w, http.StatusBadRequest, "invalid transaction body")
		return
	}
	stored, err := s.importer.Normalizer().Persist(r.Context(), tx)
	if err != nil {
		s.log.Error().Err(err).Msg("persisting transaction")
		writeError(w, http.StatusInternalServerError, "cannot persist transaction")
		return
	}
	writeJSON(w, http.StatusCreated, stored)
	s.saveStore()
}

func (s *server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid transaction id")
		return
	}
	switch err := s.store.Transactions().Delete(id); {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "transaction not found")
	case errors.Is(err, storage.ErrComposedChild):
		writeError(w, http.StatusConflict, "delete the composed parent instead")
	case err != nil:
		s.log.Error().Err(err).Msg("deleting transaction")
		writeError(w, http.StatusInternalServerError, "cannot delete transaction")
	default:
		w.WriteHeader(http.StatusNoContent)
		s.saveStore()
	}
}

func (s *server) handleListTransfers(w http.ResponseWriter, r *http.Request) {
	account, ok := accountParam(w, r)
	if !ok {
		return
	}
	trs, err := s.store.Transfers().GetAllFromAccount(account)
	if err != nil {
		s.log.Error().Err(err).Msg("listing transfers")
		writeError(w, http.StatusInternalServerError, "cannot list transfers")
		return
	}
	writeJSON(w, http.StatusOK, trs)
}

func (s *server) handleCreateTransfer(w http.ResponseWriter, r *http.Request) {
	var tr portfolio.Transfer
	if err := json.NewDecoder(r.Body).Decode(&tr); err != nil {
		writeError(w, http.StatusBadRequest, "invalid transfer body")
		return
	}
	id, err := s.store.Transfers().Add(tr)
	if err != nil {
		s.log.Error().Err(err).Msg("persisting transfer")
		writeError(w, http.StatusInternalServerError, "cannot persist transfer")
		return
	}
	tr.ID = id
	writeJSON(w, http.StatusCreated, tr)
	s.saveStore()
}

func (s *server) handleTax(w http.ResponseWriter, r *http.Request) {
	account, err := strconv.ParseInt(r.PathValue("account"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid account id")
		return
	}
	year, err := strconv.Atoi(r.URL.Query().Get("year"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "year query parameter is required")
		return
	}

	result, err := s.calculator.Calculate(r.Context(), account, year)
	if errors.Is(err, context.Canceled) {
		return
	}
	if err != nil {
		s.log.Error().Err(err).Msg("tax calculation failed")
		writeError(w, http.StatusBadGateway, "tax calculation failed, try again later")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *server) saveStore() {
	if m, ok := s.store.(*storage.Memory); ok {
		if err := m.Save(); err != nil {
			s.log.Error().Err(err).Msg("saving store")
		}
	}
}

func accountParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	account, err := strconv.ParseInt(r.URL.Query().Get("account"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "account query parameter is required")
		return 0, false
	}
	return account, true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func logRequests(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(wrapped, r)
			log.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", wrapped.statusCode).
				Dur("duration", time.Since(start)).
				Str("request_id", w.Header().Get("X-Request-ID")).
				Msg("HTTP request")
		})
	}
}

func recovery(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.Error().
						Interface("error", err).
						Str("method", r.Method).
						Str("path", r.URL.Path).
						Msg("panic recovered")
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r)
	})
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
