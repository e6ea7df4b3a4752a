package llm

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// frame is the union of payload shapes seen on completion streams and in
// buffered responses: chat deltas, full chat messages, legacy completion
// text, and error envelopes. Fields are picked explicitly rather than by
// duck-typed probing.
type frame struct {
	Error   *apiError `json:"error"`
	Message string    `json:"message"`
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		Text string `json:"text"`
	} `json:"choices"`
}

type apiError struct {
	Message string `json:"message"`
}

func (f *frame) deltaText() string {
	if len(f.Choices) == 0 {
		return ""
	}
	if c := f.Choices[0].Delta.Content; c != "" {
		return c
	}
	return f.Choices[0].Text
}

func (f *frame) messageText() string {
	if len(f.Choices) == 0 {
		return ""
	}
	if c := f.Choices[0].Message.Content; c != "" {
		return c
	}
	return f.Choices[0].Text
}

func (f *frame) errorMessage(raw string) string {
	if f.Error != nil && f.Error.Message != "" {
		return f.Error.Message
	}
	if f.Message != "" {
		return f.Message
	}
	return raw
}

// DecodeCompletion normalizes a completions response, streamed or buffered,
// into the assistant's text. The response body is consumed and closed.
func DecodeCompletion(resp *http.Response) (string, error) {
	defer resp.Body.Close()
	if strings.Contains(resp.Header.Get("Content-Type"), "text/event-stream") {
		return decodeStream(resp.Body)
	}
	return decodeBuffered(resp)
}

// decodeStream reads an SSE body line by line. An incomplete trailing line is
// buffered across reads by the scanner. An "event: error" line flips the
// decoder into error state: subsequent data lines accumulate the error
// message instead of text.
func decodeStream(r io.Reader) (string, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var text, errMsg strings.Builder
	inError := false
	for sc.Scan() {
		line := strings.TrimSuffix(sc.Text(), "\r")
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		if strings.HasPrefix(line, "event:") {
			if strings.TrimSpace(strings.TrimPrefix(line, "event:")) == "error" {
				inError = true
			}
			continue
		}
		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		data = strings.TrimSpace(data)
		if data == "[DONE]" {
			continue
		}
		var f frame
		if err := json.Unmarshal([]byte(data), &f); err != nil {
			// Unparsable payloads count as raw text only outside error state.
			if !inError {
				text.WriteString(data)
			}
			continue
		}
		if inError {
			errMsg.WriteString(f.errorMessage(data))
			continue
		}
		text.WriteString(f.deltaText())
	}
	if err := sc.Err(); err != nil {
		return "", fmt.Errorf("read stream: %w", err)
	}
	if inError {
		msg := strings.TrimSpace(errMsg.String())
		if msg == "" {
			msg = "unknown error"
		}
		return "", &UpstreamError{Message: msg}
	}
	return text.String(), nil
}

func decodeBuffered(resp *http.Response) (string, error) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	var f frame
	if jsonErr := json.Unmarshal(body, &f); jsonErr == nil {
		if f.Error != nil {
			return "", &UpstreamError{Status: resp.StatusCode, Message: f.Error.Message}
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return "", &UpstreamError{Status: resp.StatusCode, Message: excerpt(string(body))}
		}
		if txt := f.messageText(); txt != "" {
			return txt, nil
		}
		return "", &UpstreamError{Status: resp.StatusCode, Message: "no choices in response"}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &UpstreamError{Status: resp.StatusCode, Message: excerpt(string(body))}
	}
	return "", &ParseError{Excerpt: excerpt(string(body)), Err: fmt.Errorf("response is not JSON")}
}
