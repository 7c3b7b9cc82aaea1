package api

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"strings"

	"equiprent/internal/domain"
	"equiprent/internal/models"
	"equiprent/internal/repository"
)

const (
	headerIdempotencyKey = "Idempotency-Key"
	headerReplayed       = "Idempotent-Replayed"

	maxIdempotentBody = 1 << 20
)

// captureWriter buffers the response so it can be stored for replay.
type captureWriter struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func newCaptureWriter() *captureWriter {
	return &captureWriter{header: make(http.Header), status: http.StatusOK}
}

func (c *captureWriter) Header() http.Header         { return c.header }
func (c *captureWriter) Write(p []byte) (int, error) { return c.body.Write(p) }
func (c *captureWriter) WriteHeader(status int)      { c.status = status }

func (c *captureWriter) flushTo(w http.ResponseWriter) {
	for k, v := range c.header {
		w.Header()[k] = v
	}
	w.WriteHeader(c.status)
	_, _ = w.Write(c.body.Bytes())
}

// fingerprintBody hashes the request body and puts it back for the handler.
func fingerprintBody(r *http.Request) (string, error) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxIdempotentBody+1))
	if err != nil {
		return "", err
	}
	if len(raw) > maxIdempotentBody {
		return "", errors.New("request body too large")
	}
	r.Body = io.NopCloser(bytes.NewReader(raw))
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

// withIdempotency runs handle at most once per actor and Idempotency-Key.
// Outcomes below 500 are stored and replayed; server failures release the key.
// A key reused with a different body is refused rather than replayed.
func (s *HTTPServer) withIdempotency(w http.ResponseWriter, r *http.Request, actor models.Actor, handle func(http.ResponseWriter)) {
	key := strings.TrimSpace(r.Header.Get(headerIdempotencyKey))
	if key == "" || s.idempotency == nil {
		handle(w)
		return
	}
	scoped := actor.ID + ":" + key
	ttl := s.cfg.Idempotency.TTL
	if ttl <= 0 {
		ttl = models.DefaultIdempotencyTTL
	}

	fingerprint, err := fingerprintBody(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	stored, started, err := s.idempotency.Begin(r.Context(), scoped, ttl)
	if err != nil {
		s.writeError(w, r, domain.Unavailable("idempotency begin", err))
		return
	}
	if !started {
		if stored == nil || !stored.Done {
			writeProblem(w, http.StatusConflict, "RequestInProgress", "a request with this idempotency key is still being processed")
			return
		}
		if stored.Fingerprint != fingerprint {
			writeProblem(w, http.StatusUnprocessableEntity, "IdempotencyKeyReused", "this idempotency key was already used with a different request")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set(headerReplayed, "true")
		w.WriteHeader(stored.Status)
		_, _ = w.Write(stored.Body)
		return
	}

	capture := newCaptureWriter()
	handle(capture)

	// the outcome is already decided; a cancelled client must not lose it
	ctx := context.WithoutCancel(r.Context())
	if capture.status >= http.StatusInternalServerError {
		if err := s.idempotency.Abort(ctx, scoped); err != nil {
			s.logger.Warn().Err(err).Str("key", scoped).Msg("failed to release idempotency key")
		}
	} else {
		resp := repository.StoredResponse{Status: capture.status, Body: capture.body.Bytes(), Fingerprint: fingerprint}
		if err := s.idempotency.Complete(ctx, scoped, resp, ttl); err != nil {
			s.logger.Warn().Err(err).Str("key", scoped).Msg("failed to store idempotent response")
		}
	}
	capture.flushTo(w)
}
