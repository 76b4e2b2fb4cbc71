package transaction

import (
	"github.com/gin-gonic/gin"
)

const ginContextKey = "fedoauth.transaction"

// Middleware attaches a lazily-resolving transaction Context to every
// request. Deferred cookie mutations are applied just before the first
// byte of the response is written, after all handler logic had its say.
func Middleware(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		trc := NewContext(c.Request, opts)
		c.Set(ginContextKey, trc)

		w := &finalizingWriter{ResponseWriter: c.Writer, trc: trc}
		c.Writer = w

		c.Next()

		// Covers handlers that produced no body at all.
		w.finalize()
	}
}

// FromGin returns the request's transaction Context. It panics when
// the middleware was not installed, which is a wiring bug.
func FromGin(c *gin.Context) *Context {
	return c.MustGet(ginContextKey).(*Context)
}

// finalizingWriter flushes the pending cookie set exactly once, right
// before headers leave the building.
type finalizingWriter struct {
	gin.ResponseWriter
	trc  *Context
	done bool
}

func (w *finalizingWriter) finalize() {
	if w.done {
		return
	}
	w.done = true
	w.trc.Finalize(w.ResponseWriter)
}

func (w *finalizingWriter) WriteHeader(code int) {
	w.finalize()
	w.ResponseWriter.WriteHeader(code)
}

func (w *finalizingWriter) Write(b []byte) (int, error) {
	w.finalize()
	return w.ResponseWriter.Write(b)
}

func (w *finalizingWriter) WriteString(s string) (int, error) {
	w.finalize()
	return w.ResponseWriter.WriteString(s)
}
