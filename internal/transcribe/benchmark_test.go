package transcribe

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

// corpusEntry is one line of testdata/references.json: an audio file and
// what a careful listener would write down for it.
type corpusEntry struct {
	Label      string `json:"label"`
	File       string `json:"file"`
	Transcript string `json:"transcript"`

	samples []float32
}

// loadCorpus decodes every clip listed in testdata/references.json, skipping
// the benchmark when the corpus has not been fetched.
func loadCorpus(b *testing.B) []corpusEntry {
	b.Helper()

	path := filepath.Join("testdata", "references.json")
	raw, err := os.ReadFile(path)
	if err != nil {
		b.Skipf("no reference corpus at %s: %v", path, err)
	}

	var doc struct {
		Samples []corpusEntry `json:"samples"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		b.Fatalf("parse %s: %v", path, err)
	}
	for i := range doc.Samples {
		doc.Samples[i].samples = loadSamples(b, filepath.Join("testdata", doc.Samples[i].File))
	}
	return doc.Samples
}

// runCorpus transcribes each corpus clip b.N times and reports the real-time
// factor and the word error rate of the cleaned output.
func runCorpus(b *testing.B, tr Transcriber) {
	ctx := context.Background()
	for _, e := range loadCorpus(b) {
		b.Run(e.Label, func(b *testing.B) {
			seconds := float64(len(e.samples)) / 16000
			if _, err := tr.Process(ctx, e.samples); err != nil {
				b.Fatalf("warm-up Process: %v", err)
			}

			var text string
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				out, err := tr.Process(ctx, e.samples)
				if err != nil {
					b.Fatalf("Process: %v", err)
				}
				text = out
			}
			b.StopTimer()

			b.ReportMetric(b.Elapsed().Seconds()/float64(b.N)/seconds, "rtf")
			b.ReportMetric(ComputeWER(e.Transcript, Clean(text)).WER, "wer")
		})
	}
}

func BenchmarkWhisperCorpus(b *testing.B) {
	tr, err := NewWhisperTranscriber(whisperModelPath(b), WhisperOptions{Language: "en"})
	if err != nil {
		b.Fatalf("NewWhisperTranscriber: %v", err)
	}
	defer func() { _ = tr.Close() }()

	runCorpus(b, tr)
}

// BenchmarkOpenAICorpus talks to a live endpoint and only runs when
// OPENAI_API_KEY is set.
func BenchmarkOpenAICorpus(b *testing.B) {
	cfg := openAIConfigFromEnv()
	if cfg.APIKey == "" {
		b.Skip("OPENAI_API_KEY not set")
	}
	runCorpus(b, NewOpenAITranscriber(cfg, "en", 16000))
}

func BenchmarkClean(b *testing.B) {
	text := "  so i think were ready   to go. dont worry about it. ive checked everything twice and theres nothing left  "
	for i := 0; i < b.N; i++ {
		_ = Clean(text)
	}
}
