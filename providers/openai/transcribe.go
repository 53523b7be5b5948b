package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// TranscriptionError is returned when the speech-to-text endpoint fails or
// the audio payload is unusable.
type TranscriptionError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *TranscriptionError) Error() string {
	msg := strings.TrimSpace(e.Message)
	switch {
	case e.StatusCode > 0 && msg != "":
		return fmt.Sprintf("openai transcription http %d: %s", e.StatusCode, msg)
	case e.StatusCode > 0:
		return fmt.Sprintf("openai transcription http %d", e.StatusCode)
	case msg != "":
		return "openai transcription: " + msg
	case e.Err != nil:
		return "openai transcription: " + e.Err.Error()
	default:
		return "openai transcription failed"
	}
}

func (e *TranscriptionError) Unwrap() error { return e.Err }

type transcriptionResponse struct {
	Text  string    `json:"text"`
	Error *apiError `json:"error,omitempty"`
}

// Transcribe uploads the audio file at path to the speech-to-text endpoint
// and returns the recognized text.
func (c *Client) Transcribe(ctx context.Context, path string, model string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", &TranscriptionError{Message: "missing audio path"}
	}
	model = strings.TrimSpace(model)
	if model == "" {
		model = "whisper-1"
	}

	f, err := os.Open(path)
	if err != nil {
		return "", &TranscriptionError{Err: err}
	}
	defer f.Close()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		defer pw.Close()
		defer mw.Close()

		if err := mw.WriteField("model", model); err != nil {
			_ = pw.CloseWithError(err)
			return
		}
		part, err := mw.CreateFormFile("file", filepath.Base(path))
		if err != nil {
			_ = pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, f); err != nil {
			_ = pw.CloseWithError(err)
			return
		}
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v1/audio/transcriptions", pr)
	if err != nil {
		return "", &TranscriptionError{Err: err}
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", &TranscriptionError{Err: err}
	}
	raw, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()

	var out transcriptionResponse
	_ = json.Unmarshal(raw, &out)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := strings.TrimSpace(string(raw))
		if out.Error != nil && out.Error.Message != "" {
			msg = out.Error.Message
		}
		return "", &TranscriptionError{StatusCode: resp.StatusCode, Message: msg}
	}

	text := strings.TrimSpace(out.Text)
	if text == "" {
		return "", &TranscriptionError{StatusCode: resp.StatusCode, Message: "empty transcript"}
	}
	return text, nil
}
