package speech

import (
	"context"
	"encoding/base64"

	"google.golang.org/api/option"
	texttospeech "google.golang.org/api/texttospeech/v1"

	"slidecast/internal/services"
)

// API is the synthesis backend. Implementations return encoded MP3 bytes for
// the given narration text.
type API interface {
	Synthesize(ctx context.Context, text string, voice Voice) ([]byte, error)
}

// GoogleAPI synthesizes narration through the Google Cloud Text-to-Speech
// REST API.
type GoogleAPI struct {
	service *texttospeech.Service
}

// NewGoogleAPI builds the client. Exactly one of credentialsFile or apiKey
// should be set; with neither, application default credentials apply.
func NewGoogleAPI(ctx context.Context, credentialsFile, apiKey string) (*GoogleAPI, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	service, err := texttospeech.NewService(ctx, opts...)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "speech", "new", "create synthesis client", err)
	}
	return &GoogleAPI{service: service}, nil
}

// Synthesize implements API.
func (g *GoogleAPI) Synthesize(ctx context.Context, text string, voice Voice) ([]byte, error) {
	request := &texttospeech.SynthesizeSpeechRequest{
		Input: &texttospeech.SynthesisInput{Text: text},
		Voice: &texttospeech.VoiceSelectionParams{
			LanguageCode: voice.Language,
			Name:         voice.Name,
			SsmlGender:   voice.Gender.ssmlGender(),
		},
		AudioConfig: &texttospeech.AudioConfig{AudioEncoding: "MP3"},
	}

	response, err := g.service.Text.Synthesize(request).Context(ctx).Do()
	if err != nil {
		return nil, services.Wrap(services.ErrExternalService, "speech", "synthesize", "synthesis request failed", err)
	}

	audio, err := base64.StdEncoding.DecodeString(response.AudioContent)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalService, "speech", "synthesize", "decode audio payload", err)
	}
	if len(audio) == 0 {
		return nil, services.Wrap(services.ErrExternalService, "speech", "synthesize", "service returned no audio", nil)
	}
	return audio, nil
}
