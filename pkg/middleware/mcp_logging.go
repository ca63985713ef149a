package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/downtime-engine/pkg/logging"
)

// maxMCPBody bounds how much of a JSON-RPC body is buffered for logging.
const maxMCPBody = 1 << 20

// MCPRequestLogger logs one line per JSON-RPC call: method, tool, a preview
// of the question argument and the outcome. A nil logger disables it.
func MCPRequestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if logger == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, err := io.ReadAll(io.LimitReader(r.Body, maxMCPBody))
			if err != nil {
				logger.Warn("Failed to read MCP request body", zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			var call rpcCall
			_ = json.Unmarshal(body, &call)

			rec := &rpcRecorder{ResponseWriter: w}
			start := time.Now()
			next.ServeHTTP(rec, r)

			fields := []zap.Field{
				zap.String("request_id", RequestIDFromContext(r.Context())),
				zap.String("method", call.Method),
				zap.Duration("duration", time.Since(start)),
			}
			if call.Params.Name != "" {
				fields = append(fields, zap.String("tool", call.Params.Name))
			}
			if q, ok := call.Params.Arguments["question"].(string); ok {
				fields = append(fields, zap.String("question", logging.TruncateString(q, 200)))
			}

			var reply rpcReply
			if err := json.Unmarshal(rec.body.Bytes(), &reply); err == nil && reply.Error != nil {
				fields = append(fields,
					zap.Int("error_code", reply.Error.Code),
					zap.String("error_message", reply.Error.Message))
				logger.Warn("MCP call failed", fields...)
				return
			}
			logger.Debug("MCP call", fields...)
		})
	}
}

type rpcCall struct {
	Method string `json:"method"`
	Params struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	} `json:"params"`
}

type rpcReply struct {
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// rpcRecorder tees the response body, keeping at most maxMCPBody bytes.
type rpcRecorder struct {
	http.ResponseWriter
	body bytes.Buffer
}

func (r *rpcRecorder) Write(b []byte) (int, error) {
	if room := maxMCPBody - r.body.Len(); room > 0 {
		if len(b) < room {
			room = len(b)
		}
		r.body.Write(b[:room])
	}
	return r.ResponseWriter.Write(b)
}

func (r *rpcRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
