package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// ResponseTime stamps every response with its server-side processing time.
// The header must be written before the handler chain flushes the body.
func ResponseTime() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		writer := &timedWriter{ResponseWriter: c.Writer, start: start}
		c.Writer = writer
		c.Next()
	}
}

type timedWriter struct {
	gin.ResponseWriter
	start   time.Time
	stamped bool
}

func (w *timedWriter) WriteHeader(status int) {
	w.stamp()
	w.ResponseWriter.WriteHeader(status)
}

func (w *timedWriter) Write(data []byte) (int, error) {
	w.stamp()
	return w.ResponseWriter.Write(data)
}

func (w *timedWriter) stamp() {
	if w.stamped {
		return
	}
	w.stamped = true
	elapsed := time.Since(w.start).Milliseconds()
	w.Header().Set("X-Response-Time-Ms", strconv.FormatInt(elapsed, 10))
}
