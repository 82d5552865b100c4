package conductor

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
)

type userMessage struct {
	Type    string      `json:"type"`
	Message userContent `json:"message"`
}

type userContent struct {
	Role    string         `json:"role"`
	Content []contentBlock `json:"content"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// BuildStdinMessage frames a prompt as one stream-json user message, without
// the trailing newline.
func BuildStdinMessage(prompt string) ([]byte, error) {
	msg := userMessage{
		Type: "user",
		Message: userContent{
			Role:    "user",
			Content: []contentBlock{{Type: "text", Text: prompt}},
		},
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(msg); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// writePrompt writes one framed prompt line to w and flushes it.
func writePrompt(w io.Writer, prompt string) error {
	data, err := BuildStdinMessage(prompt)
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(w)
	if _, err := bw.Write(data); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}
	return bw.Flush()
}
