package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/dailydigest/internal/relay"
)

// keepAliveInterval is how often the streamed relay emits a comment line so
// idle-connection timeouts on intermediaries do not cut the stream.
const keepAliveInterval = 5 * time.Second

// hop-by-hop headers never forwarded back to the caller.
var skipHeaders = map[string]bool{
	"Connection":        true,
	"Keep-Alive":        true,
	"Transfer-Encoding": true,
	"Content-Length":    true,
}

// relay handles POST /api/relay. Buffered requests come back verbatim with a
// permissive CORS header; streaming completions are relayed as SSE with
// synthetic keep-alives and error frames.
func (h *Handlers) relay(c echo.Context) error {
	var req relay.Request
	if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid JSON body: "+err.Error())
	}
	if err := req.Validate(); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.WantsStream() {
		return h.relayStream(c, req)
	}
	return h.relayBuffered(c, req)
}

func (h *Handlers) relayBuffered(c echo.Context, req relay.Request) error {
	resp, err := h.Relay.Do(c.Request().Context(), req)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, fmt.Sprintf("read upstream: %v", err))
	}

	hdr := c.Response().Header()
	for k, vs := range resp.Header {
		if skipHeaders[http.CanonicalHeaderKey(k)] {
			continue
		}
		for _, v := range vs {
			hdr.Add(k, v)
		}
	}
	hdr.Set("Access-Control-Allow-Origin", "*")
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = echo.MIMEOctetStream
	}
	return c.Blob(resp.StatusCode, contentType, body)
}

type upstreamResult struct {
	resp *http.Response
	err  error
}

func (h *Handlers) relayStream(c echo.Context, req relay.Request) error {
	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	w.Flush()

	ctx := c.Request().Context()
	up := make(chan upstreamResult, 1)
	go func() {
		resp, err := h.Relay.Do(ctx, req)
		up <- upstreamResult{resp: resp, err: err}
	}()

	interval := h.KeepAlive
	if interval <= 0 {
		interval = keepAliveInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Phase 1: wait for upstream headers, keeping the local stream warm.
	var resp *http.Response
	for resp == nil {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			writeComment(w)
		case r := <-up:
			if r.err != nil {
				writeErrorFrame(w, r.err.Error())
				return nil
			}
			resp = r.resp
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 16*1024))
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			msg = fmt.Sprintf("upstream returned status %d", resp.StatusCode)
		}
		writeErrorFrame(w, msg)
		return nil
	}

	// Phase 2: relay upstream bytes verbatim, interleaving keep-alives while
	// the upstream is silent.
	chunks := make(chan []byte)
	readErr := make(chan error, 1)
	go func() {
		defer close(chunks)
		buf := make([]byte, 4096)
		for {
			n, err := resp.Body.Read(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				select {
				case chunks <- chunk:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				readErr <- err
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			writeComment(w)
		case chunk, ok := <-chunks:
			if !ok {
				// Reader finished; surface a failure reason unless it was EOF.
				select {
				case err := <-readErr:
					if err != io.EOF {
						writeErrorFrame(w, err.Error())
					}
				default:
				}
				return nil
			}
			_, _ = w.Write(chunk)
			w.Flush()
		}
	}
}

func writeComment(w *echo.Response) {
	_, _ = io.WriteString(w, ": keepalive\n\n")
	w.Flush()
}

// writeErrorFrame emits a single SSE error event whose data line the stream
// decoder can parse back into a message.
func writeErrorFrame(w *echo.Response, msg string) {
	payload, _ := json.Marshal(map[string]any{"error": map[string]string{"message": msg}})
	fmt.Fprintf(w, "event: error\ndata: %s\n\n", payload)
	w.Flush()
}
