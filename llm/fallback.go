package llm

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// FallbackChain tries each configured provider in order, falling through
// to the next on timeout, a non-2xx response, or an empty completion.
// Total wall-clock across every attempt is bounded by Deadline.
type FallbackChain struct {
	providers []Provider
	deadline  time.Duration
}

// NewFallbackChain builds a chain from an ordered provider list (e.g.
// local-first or remote-first) and an overall deadline.
func NewFallbackChain(providers []Provider, deadline time.Duration) *FallbackChain {
	if deadline <= 0 {
		deadline = 120 * time.Second
	}
	return &FallbackChain{providers: providers, deadline: deadline}
}

// ErrAllProvidersFailed is returned when every provider in the chain
// failed or the deadline expired before one succeeded.
var ErrAllProvidersFailed = errors.New("llm: all providers failed")

// Generate runs the chat request against providers in order and returns
// the first non-empty completion.
func (f *FallbackChain) Generate(ctx context.Context, prompt ChatRequest) (string, error) {
	if len(f.providers) == 0 {
		return "", fmt.Errorf("%w: no providers configured", ErrAllProvidersFailed)
	}
	ctx, cancel := context.WithTimeout(ctx, f.deadline)
	defer cancel()

	var lastErr error
	for i, p := range f.providers {
		if ctx.Err() != nil {
			lastErr = ctx.Err()
			break
		}
		resp, err := p.Chat(ctx, prompt)
		if err != nil {
			slog.Warn("llm provider failed, falling through", "provider_index", i, "error", err)
			lastErr = err
			continue
		}
		if resp == nil || resp.Content == "" {
			slog.Warn("llm provider returned empty completion, falling through", "provider_index", i)
			lastErr = fmt.Errorf("empty completion from provider %d", i)
			continue
		}
		return resp.Content, nil
	}
	return "", fmt.Errorf("%w: %v", ErrAllProvidersFailed, lastErr)
}

// GenerateWithImage runs a vision chat request against the providers in
// order that implement VisionProvider, skipping any that don't (e.g. a
// text-only embedding provider placed in the same chain by mistake). It
// is used by the ingest pipeline to caption embedded images and scanned
// pages before they are embedded.
func (f *FallbackChain) GenerateWithImage(ctx context.Context, req VisionChatRequest) (string, error) {
	if len(f.providers) == 0 {
		return "", fmt.Errorf("%w: no providers configured", ErrAllProvidersFailed)
	}
	ctx, cancel := context.WithTimeout(ctx, f.deadline)
	defer cancel()

	var lastErr error
	attempted := false
	for i, p := range f.providers {
		if ctx.Err() != nil {
			lastErr = ctx.Err()
			break
		}
		vp, ok := p.(VisionProvider)
		if !ok {
			continue
		}
		attempted = true
		resp, err := vp.ChatWithImages(ctx, req)
		if err != nil {
			slog.Warn("llm vision provider failed, falling through", "provider_index", i, "error", err)
			lastErr = err
			continue
		}
		if resp == nil || resp.Content == "" {
			slog.Warn("llm vision provider returned empty completion, falling through", "provider_index", i)
			lastErr = fmt.Errorf("empty completion from provider %d", i)
			continue
		}
		return resp.Content, nil
	}
	if !attempted {
		return "", fmt.Errorf("%w: no vision-capable providers configured", ErrAllProvidersFailed)
	}
	return "", fmt.Errorf("%w: %v", ErrAllProvidersFailed, lastErr)
}

const captionMaxTokens = 200

// Caption asks a vision-capable provider to describe imageData in one or
// two sentences, transcribing any visible text. It wraps GenerateWithImage
// so callers outside this package (the ingest processors) don't need to
// build a VisionChatRequest or know about base64 data URLs; its signature
// is shaped to satisfy ingest.VisionCaptioner by structural typing, without
// this package importing ingest.
func (f *FallbackChain) Caption(ctx context.Context, imageData []byte, mimeType string) (string, error) {
	encoded := base64.StdEncoding.EncodeToString(imageData)
	req := VisionChatRequest{
		MaxTokens: captionMaxTokens,
		Messages: []VisionMessage{
			{
				Role: "user",
				Content: []ContentPart{
					{Type: "text", Text: "Describe this image in one or two sentences. Transcribe any legible text verbatim."},
					{Type: "image_url", ImageURL: &ImageURL{URL: "data:" + mimeType + ";base64," + encoded}},
				},
			},
		},
	}
	return f.GenerateWithImage(ctx, req)
}

// Embed runs the embedding request against providers in order, returning
// the first successful batch result.
func (f *FallbackChain) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(f.providers) == 0 {
		return nil, fmt.Errorf("%w: no providers configured", ErrAllProvidersFailed)
	}
	ctx, cancel := context.WithTimeout(ctx, f.deadline)
	defer cancel()

	var lastErr error
	for i, p := range f.providers {
		if ctx.Err() != nil {
			lastErr = ctx.Err()
			break
		}
		vecs, err := p.Embed(ctx, texts)
		if err != nil {
			slog.Warn("llm embed provider failed, falling through", "provider_index", i, "error", err)
			lastErr = err
			continue
		}
		return vecs, nil
	}
	return nil, fmt.Errorf("%w: %v", ErrAllProvidersFailed, lastErr)
}
