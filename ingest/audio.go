package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os/exec"

	"github.com/google/uuid"

	"github.com/brunobiangulo/ragcore/chunk"
)

// AudioProcessor transcribes audio by invoking an external speech-to-text
// binary that emits a whisper-style JSON transcript to stdout.
type AudioProcessor struct {
	DecoderPath string
}

func NewAudioProcessor(decoderPath string) *AudioProcessor {
	return &AudioProcessor{DecoderPath: decoderPath}
}

func (p *AudioProcessor) SupportedFormats() []string {
	return []string{"mp3", "wav", "m4a", "flac", "ogg"}
}

type whisperSegment struct {
	Start        float64 `json:"start"`
	End          float64 `json:"end"`
	Text         string  `json:"text"`
	AvgLogprob   float64 `json:"avg_logprob"`
	NoSpeechProb float64 `json:"no_speech_prob"`
}

type whisperTranscript struct {
	Segments []whisperSegment `json:"segments"`
}

func (p *AudioProcessor) Process(ctx context.Context, path, sourceFile string) ([]chunk.Chunk, error) {
	if p.DecoderPath == "" {
		return nil, newProcessingError(DependencyMissing, "no audio decoder configured", nil)
	}

	transcript, err := p.transcribe(ctx, path)
	if err != nil || len(transcript.Segments) == 0 {
		return []chunk.Chunk{{
			ID:         uuid.NewString(),
			Modality:   chunk.Audio,
			Content:    "",
			SourceFile: sourceFile,
			SourceType: chunk.UploadedAudio,
			Confidence: 0,
			Metadata:   chunk.Metadata{Status: "failed", Warning: transcriptionWarning(err)},
		}}, nil
	}

	chunks := make([]chunk.Chunk, 0, len(transcript.Segments))
	for _, seg := range transcript.Segments {
		confidence := segmentConfidence(seg.AvgLogprob, seg.NoSpeechProb)
		chunks = append(chunks, chunk.Chunk{
			ID:         uuid.NewString(),
			Modality:   chunk.Audio,
			Content:    seg.Text,
			SourceFile: sourceFile,
			SourceType: chunk.UploadedAudio,
			Confidence: confidence,
			Metadata: chunk.Metadata{
				SegmentStart:            seg.Start,
				SegmentEnd:              seg.End,
				TranscriptionConfidence: confidence,
			},
		})
	}
	return chunks, nil
}

func (p *AudioProcessor) transcribe(ctx context.Context, path string) (whisperTranscript, error) {
	cmd := exec.CommandContext(ctx, p.DecoderPath, path, "--output_format", "json")
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return whisperTranscript{}, fmt.Errorf("running audio decoder: %w", err)
	}

	var t whisperTranscript
	if err := json.Unmarshal(out.Bytes(), &t); err != nil {
		return whisperTranscript{}, fmt.Errorf("parsing decoder output: %w", err)
	}
	return t, nil
}

// segmentConfidence turns log-probability and no-speech probability into a
// [0,1] confidence, penalizing segments whisper itself flags as likely
// non-speech.
func segmentConfidence(avgLogprob, noSpeechProb float64) float64 {
	prob := math.Exp(avgLogprob)
	confidence := prob * (1 - noSpeechProb)
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	return confidence
}

func transcriptionWarning(err error) string {
	if err != nil {
		return "transcription failed: " + err.Error()
	}
	return "empty transcript"
}
