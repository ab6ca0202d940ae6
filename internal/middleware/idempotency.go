package middleware

import (
	"bytes"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
)

const (
	HeaderIdempotencyKey   = "Idempotency-Key"
	HeaderIdempotentReplay = "Idempotent-Replay"
)

type cachedResponse struct {
	status      int
	contentType string
	body        []byte
	pending     bool
}

type bodyRecorder struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *bodyRecorder) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *bodyRecorder) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Idempotency replays the stored response of a successful request carrying
// the same Idempotency-Key. Requests without the header pass through.
type Idempotency struct {
	cache *cache.Cache
}

func NewIdempotency(ttl time.Duration) *Idempotency {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Idempotency{cache: cache.New(ttl, 2*ttl)}
}

func (i *Idempotency) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" {
			c.Next()
			return
		}

		scope := key + "|" + c.Request.Method + "|" + c.Request.URL.Path
		if actor, ok := ActorFrom(c); ok {
			scope = actor.UserID.String() + "|" + scope
		}

		// Add fails when the key exists, which covers both replays and
		// requests still in flight
		if err := i.cache.Add(scope, &cachedResponse{pending: true}, cache.DefaultExpiration); err != nil {
			cached, found := i.cache.Get(scope)
			if !found {
				c.Next()
				return
			}
			resp := cached.(*cachedResponse)
			if resp.pending {
				c.AbortWithStatusJSON(http.StatusConflict, ErrorResponse{
					Code:    http.StatusConflict,
					Message: "a request with this idempotency key is in progress",
					TraceID: c.GetString(ContextRequestID),
				})
				return
			}
			c.Header(HeaderIdempotentReplay, "true")
			c.Data(resp.status, resp.contentType, resp.body)
			c.Abort()
			return
		}

		// A panicking handler must not leave the key pending until it expires
		stored := false
		defer func() {
			if !stored {
				i.cache.Delete(scope)
			}
		}()

		rec := &bodyRecorder{ResponseWriter: c.Writer, body: &bytes.Buffer{}}
		c.Writer = rec
		c.Next()

		status := rec.Status()
		if status < 200 || status >= 300 {
			return
		}
		stored = true
		i.cache.Set(scope, &cachedResponse{
			status:      status,
			contentType: rec.Header().Get("Content-Type"),
			body:        rec.body.Bytes(),
		}, cache.DefaultExpiration)
	}
}
