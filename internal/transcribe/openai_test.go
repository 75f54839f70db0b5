package transcribe

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/chaz8081/gostt-server/internal/config"
)

func TestOpenAITranscriberProcess(t *testing.T) {
	var gotAuth, gotModel, gotLang string
	var gotWAVHeader []byte

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/transcriptions" {
			t.Errorf("request path = %q, want /audio/transcriptions", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		gotModel = r.FormValue("model")
		gotLang = r.FormValue("language")

		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Errorf("form file: %v", err)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer func() { _ = f.Close() }()
		if hdr.Filename != "audio.wav" {
			t.Errorf("upload filename = %q, want audio.wav", hdr.Filename)
		}
		gotWAVHeader = make([]byte, 4)
		_, _ = io.ReadFull(f, gotWAVHeader)

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"text":"  hello from the server  "}`)
	}))
	defer srv.Close()

	tr := NewOpenAITranscriber(config.OpenAIConfig{
		APIKey:  "sk-test",
		BaseURL: srv.URL + "/",
		Model:   "whisper-large-v3",
	}, "en", 16000)

	text, err := tr.Process(context.Background(), make([]float32, 1600))
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if text != "hello from the server" {
		t.Errorf("Process() = %q, want trimmed server text", text)
	}
	if gotAuth != "Bearer sk-test" {
		t.Errorf("Authorization = %q, want Bearer sk-test", gotAuth)
	}
	if gotModel != "whisper-large-v3" || gotLang != "en" {
		t.Errorf("model/language = %q/%q, want whisper-large-v3/en", gotModel, gotLang)
	}
	if string(gotWAVHeader) != "RIFF" {
		t.Errorf("uploaded file header = %q, want RIFF", gotWAVHeader)
	}
	if tr.Name() != "openai:whisper-large-v3" {
		t.Errorf("Name() = %q", tr.Name())
	}
}

func TestOpenAITranscriberServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"error":{"message":"model overloaded","type":"server_error"}}`)
	}))
	defer srv.Close()

	tr := NewOpenAITranscriber(config.OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL}, "", 16000)
	_, err := tr.Process(context.Background(), make([]float32, 160))
	if err == nil {
		t.Fatal("Process() should return error on HTTP 500")
	}
	if !strings.Contains(err.Error(), "model overloaded") {
		t.Errorf("error = %q, want server message", err)
	}
}

func openAIConfigFromEnv() config.OpenAIConfig {
	return config.OpenAIConfig{
		APIKey:  os.Getenv("OPENAI_API_KEY"),
		BaseURL: os.Getenv("OPENAI_BASE_URL"),
	}
}
