package dictation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"navgurukul.org/assistant/internal/logger"
)

type recognizeFunc func(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error)

// GoogleSource transcribes short clips with Cloud Speech-to-Text.
type GoogleSource struct {
	recognize    recognizeFunc
	closeFn      func() error
	languageCode string
	timeout      time.Duration
	log          *logger.Logger
}

func NewGoogleSource(ctx context.Context, languageCode string, log *logger.Logger, opts ...option.ClientOption) (*GoogleSource, error) {
	client, err := speech.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("speech client: %w", err)
	}
	recognize := func(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error) {
		return client.Recognize(ctx, req)
	}
	return newGoogleSource(recognize, client.Close, languageCode, log), nil
}

func newGoogleSource(recognize recognizeFunc, closeFn func() error, languageCode string, log *logger.Logger) *GoogleSource {
	if languageCode == "" {
		languageCode = "en-US"
	}
	return &GoogleSource{
		recognize:    recognize,
		closeFn:      closeFn,
		languageCode: languageCode,
		timeout:      time.Minute,
		log:          log.With("component", "GoogleSource"),
	}
}

func (g *GoogleSource) Close() error {
	if g == nil || g.closeFn == nil {
		return nil
	}
	return g.closeFn()
}

func (g *GoogleSource) Listen(ctx context.Context, clip Clip) <-chan Result {
	out := make(chan Result, 1)
	go func() {
		defer close(out)
		out <- g.transcribe(ctx, clip)
	}()
	return out
}

func (g *GoogleSource) transcribe(ctx context.Context, clip Clip) Result {
	if len(clip.Audio) == 0 {
		return Result{Status: StatusError, Err: ErrEmptyAudio}
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	req := &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:                   inferEncoding(clip.MimeType),
			LanguageCode:               g.languageCode,
			EnableAutomaticPunctuation: true,
			MaxAlternatives:            1,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: clip.Audio},
		},
	}

	resp, err := g.recognize(ctx, req)
	if err != nil {
		if isDenied(err) {
			g.log.Warn("Speech recognition denied", "error", err)
			return Result{Status: StatusDenied, Err: fmt.Errorf("%w: %v", ErrDenied, err)}
		}
		g.log.Error("Speech recognition failed", "error", err)
		return Result{Status: StatusError, Err: fmt.Errorf("speech recognize: %w", err)}
	}

	return Result{Status: StatusIdle, Text: firstTranscript(resp)}
}

// firstTranscript joins the top alternative of every result segment.
func firstTranscript(resp *speechpb.RecognizeResponse) string {
	if resp == nil {
		return ""
	}
	var parts []string
	for _, r := range resp.GetResults() {
		alts := r.GetAlternatives()
		if len(alts) == 0 || alts[0] == nil {
			continue
		}
		if t := strings.TrimSpace(alts[0].GetTranscript()); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}

func isDenied(err error) bool {
	if errors.Is(err, ErrDenied) {
		return true
	}
	switch status.Code(err) {
	case codes.PermissionDenied, codes.Unauthenticated:
		return true
	}
	return false
}

func inferEncoding(mimeType string) speechpb.RecognitionConfig_AudioEncoding {
	m := strings.ToLower(strings.TrimSpace(mimeType))
	switch {
	case strings.Contains(m, "webm"):
		return speechpb.RecognitionConfig_WEBM_OPUS
	case strings.Contains(m, "ogg") || strings.Contains(m, "opus"):
		return speechpb.RecognitionConfig_OGG_OPUS
	case strings.Contains(m, "flac"):
		return speechpb.RecognitionConfig_FLAC
	case strings.Contains(m, "mp3") || strings.Contains(m, "mpeg"):
		return speechpb.RecognitionConfig_MP3
	case strings.Contains(m, "wav") || strings.Contains(m, "l16") || strings.Contains(m, "pcm"):
		return speechpb.RecognitionConfig_LINEAR16
	default:
		return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED
	}
}
