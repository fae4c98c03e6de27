package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/subrat243/DeCent-Pay/internal/cache"
)

const IdempotencyHeader = "Idempotency-Key"

type recordingWriter struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *recordingWriter) Write(data []byte) (int, error) {
	w.body.Write(data)
	return w.ResponseWriter.Write(data)
}

func (w *recordingWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Idempotency runs a mutating request at most once per Idempotency-Key of
// the same caller. The key is claimed before the handler runs: a duplicate
// arriving while the first is in flight gets 409, a completed one is
// replayed, and a key reused with a different body gets 422. Responses of
// 500 and above, and panics, release the claim so the request may be
// retried. It must run after Auth.
func Idempotency(store cache.IdempotencyStore, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := strings.TrimSpace(c.GetHeader(IdempotencyHeader))
		if key == "" || store == nil || !mutating(c.Request.Method) {
			c.Next()
			return
		}
		principal, _ := MustPrincipal(c)
		storeKey := principal.AccountID + ":" + c.Request.Method + ":" + c.Request.URL.Path + ":" + key

		body, err := readBody(c.Request)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "InvalidRequestBody"})
			return
		}
		requestHash := hashBody(body)

		existing, claimed, err := store.Reserve(c.Request.Context(), storeKey, requestHash)
		if err != nil {
			log.Error().Err(err).Str("key", key).Msg("idempotency reserve failed")
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "IdempotencyUnavailable"})
			return
		}
		if !claimed {
			switch {
			case existing.RequestHash != requestHash:
				c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"error": "IdempotencyKeyReused"})
			case existing.InProgress():
				c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "IdempotencyKeyInUse"})
			default:
				c.Header("Idempotent-Replayed", "true")
				c.Data(existing.Response.Status, existing.Response.ContentType, existing.Response.Body)
				c.Abort()
			}
			return
		}

		// Outlives a client disconnect so the claim is never left dangling.
		storeCtx := context.WithoutCancel(c.Request.Context())
		settled := false
		defer func() {
			if settled {
				return
			}
			if err := store.Release(storeCtx, storeKey); err != nil {
				log.Warn().Err(err).Str("key", key).Msg("idempotency release failed")
			}
		}()

		writer := &recordingWriter{ResponseWriter: c.Writer}
		c.Writer = writer
		c.Next()

		status := writer.Status()
		if status >= http.StatusInternalServerError {
			return
		}
		// From here the claim is kept even if Complete fails: the handler
		// has run, and duplicates keep getting 409 until the key expires.
		settled = true
		record := cache.IdempotencyRecord{
			RequestHash: requestHash,
			Response: &cache.StoredResponse{
				Status:      status,
				ContentType: writer.Header().Get("Content-Type"),
				Body:        writer.body.Bytes(),
			},
		}
		if err := store.Complete(storeCtx, storeKey, record); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("idempotency store failed")
		}
	}
}

func readBody(req *http.Request) ([]byte, error) {
	if req.Body == nil {
		return nil, nil
	}
	body, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, err
	}
	req.Body = io.NopCloser(bytes.NewReader(body))
	return body, nil
}

func hashBody(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

func mutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	default:
		return false
	}
}
