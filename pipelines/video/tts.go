package video

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"google.golang.org/genai"

	"slidecast/common"
)

// Synthesizer turns text into a speech audio file. One instance serves a whole
// run and is closed when the run ends.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, outputPath string) error
	Extension() string
	Close() error
}

// NewSynthesizer opens the engine named in cfg.
func NewSynthesizer(ctx context.Context, cfg common.NarrationConfig, exec common.Executor) (Synthesizer, error) {
	switch cfg.Engine {
	case "espeak", "":
		return NewEspeakSynthesizer(exec, cfg.Voice, cfg.Rate), nil
	case "sarvam":
		if cfg.SarvamKey == "" {
			return nil, fmt.Errorf("SARVAM_API_KEY is not set")
		}
		return NewSarvamClient(cfg.SarvamKey, cfg.Language, cfg.Voice, exec), nil
	case "gemini":
		if cfg.GeminiKey == "" {
			return nil, fmt.Errorf("GEMINI_API_KEY is not set")
		}
		return NewGeminiSpeech(ctx, cfg.GeminiKey, cfg.Model, cfg.Voice, exec)
	default:
		return nil, fmt.Errorf("unknown narration engine: %s", cfg.Engine)
	}
}

// EspeakSynthesizer runs the local espeak-ng binary.
type EspeakSynthesizer struct {
	exec  common.Executor
	voice string
	rate  int
}

func NewEspeakSynthesizer(exec common.Executor, voice string, rate int) *EspeakSynthesizer {
	if rate <= 0 {
		rate = 150
	}
	return &EspeakSynthesizer{exec: exec, voice: voice, rate: rate}
}

func (e *EspeakSynthesizer) Synthesize(ctx context.Context, text, outputPath string) error {
	textPath := outputPath + ".txt"
	if err := os.WriteFile(textPath, []byte(text), 0644); err != nil {
		return fmt.Errorf("write narration text: %w", err)
	}
	defer os.Remove(textPath)

	args := []string{"-s", strconv.Itoa(e.rate)}
	if e.voice != "" {
		args = append(args, "-v", e.voice)
	}
	args = append(args, "-w", outputPath, "-f", textPath)

	if _, err := e.exec.Execute(ctx, "espeak-ng", args...); err != nil {
		return fmt.Errorf("espeak-ng: %w", err)
	}
	return nil
}

func (e *EspeakSynthesizer) Extension() string { return "wav" }
func (e *EspeakSynthesizer) Close() error      { return nil }

// LanguageCodes maps language names to Sarvam TTS codes
var LanguageCodes = map[string]string{
	"english":   "en-IN",
	"hindi":     "hi-IN",
	"tamil":     "ta-IN",
	"bengali":   "bn-IN",
	"telugu":    "te-IN",
	"kannada":   "kn-IN",
	"malayalam": "ml-IN",
	"marathi":   "mr-IN",
	"gujarati":  "gu-IN",
	"punjabi":   "pa-IN",
	"odia":      "od-IN",
}

const (
	sarvamBaseURL  = "https://api.sarvam.ai"
	sarvamMaxChars = 500
)

type SarvamClient struct {
	client   *resty.Client
	exec     common.Executor
	language string
	speaker  string
}

type sarvamRequest struct {
	Inputs              []string `json:"inputs"`
	TargetLanguageCode  string   `json:"target_language_code"`
	Speaker             string   `json:"speaker"`
	SpeechSampleRate    int      `json:"speech_sample_rate"`
	EnablePreprocessing bool     `json:"enable_preprocessing"`
	Model               string   `json:"model"`
}

type sarvamResponse struct {
	Audios []string `json:"audios"`
}

func NewSarvamClient(apiKey, language, speaker string, exec common.Executor) *SarvamClient {
	return newSarvamClient(sarvamBaseURL, apiKey, language, speaker, exec)
}

func newSarvamClient(baseURL, apiKey, language, speaker string, exec common.Executor) *SarvamClient {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(60*time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(2*time.Second).
		SetHeader("api-subscription-key", apiKey)
	client.AddRetryCondition(func(r *resty.Response, err error) bool {
		return err != nil || r.StatusCode() == 429 || r.StatusCode() >= 500
	})

	code, ok := LanguageCodes[strings.ToLower(language)]
	if !ok {
		code = "en-IN"
	}
	if speaker == "" {
		speaker = "vidya"
	}
	return &SarvamClient{client: client, exec: exec, language: code, speaker: speaker}
}

func (s *SarvamClient) Synthesize(ctx context.Context, text, outputPath string) error {
	chunks := splitTextIntoChunks(text, sarvamMaxChars)
	if len(chunks) == 1 {
		return s.synthesizeChunk(ctx, chunks[0], outputPath)
	}

	var chunkFiles []string
	defer func() {
		for _, f := range chunkFiles {
			os.Remove(f)
		}
	}()
	for i, chunk := range chunks {
		chunkPath := fmt.Sprintf("%s.chunk_%03d.wav", strings.TrimSuffix(outputPath, filepath.Ext(outputPath)), i)
		if err := s.synthesizeChunk(ctx, chunk, chunkPath); err != nil {
			return fmt.Errorf("chunk %d: %w", i, err)
		}
		chunkFiles = append(chunkFiles, chunkPath)
	}
	return concatAudio(ctx, s.exec, chunkFiles, outputPath)
}

func (s *SarvamClient) synthesizeChunk(ctx context.Context, text, outputPath string) error {
	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(sarvamRequest{
			Inputs:              []string{text},
			TargetLanguageCode:  s.language,
			Speaker:             s.speaker,
			SpeechSampleRate:    22050,
			EnablePreprocessing: true,
			Model:               "bulbul:v2",
		}).
		SetResult(&sarvamResponse{}).
		Post("/text-to-speech")
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("API error: %d - %s", resp.StatusCode(), resp.String())
	}

	result := resp.Result().(*sarvamResponse)
	if len(result.Audios) == 0 {
		return fmt.Errorf("no audio in response")
	}

	audioStr := result.Audios[0]
	// Strip data URI header if present
	if idx := strings.Index(audioStr, ","); idx != -1 {
		audioStr = audioStr[idx+1:]
	}

	audioBytes, err := base64.StdEncoding.DecodeString(audioStr)
	if err != nil {
		return fmt.Errorf("decode audio: %w", err)
	}
	return os.WriteFile(outputPath, audioBytes, 0644)
}

func (s *SarvamClient) Extension() string { return "wav" }
func (s *SarvamClient) Close() error      { return nil }

const (
	defaultGeminiTTSModel = "gemini-2.5-flash-preview-tts"
	defaultGeminiVoice    = "Kore"
)

// GeminiSpeech uses the Gemini speech generation models. They return raw
// 24kHz mono s16le PCM, which is wrapped into WAV with ffmpeg.
type GeminiSpeech struct {
	client *genai.Client
	exec   common.Executor
	model  string
	voice  string
}

func NewGeminiSpeech(ctx context.Context, apiKey, model, voice string, exec common.Executor) (*GeminiSpeech, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}
	if model == "" {
		model = defaultGeminiTTSModel
	}
	if voice == "" {
		voice = defaultGeminiVoice
	}
	return &GeminiSpeech{client: client, exec: exec, model: model, voice: voice}, nil
}

func (g *GeminiSpeech) Synthesize(ctx context.Context, text, outputPath string) error {
	result, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(text), &genai.GenerateContentConfig{
		ResponseModalities: []string{"AUDIO"},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: g.voice},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("generate speech: %w", err)
	}

	pcm := inlineAudio(result)
	if len(pcm) == 0 {
		return fmt.Errorf("empty audio response from Gemini")
	}

	pcmPath := outputPath + ".pcm"
	if err := os.WriteFile(pcmPath, pcm, 0644); err != nil {
		return err
	}
	defer os.Remove(pcmPath)

	_, err = g.exec.Execute(ctx, "ffmpeg", "-y", "-f", "s16le", "-ar", "24000", "-ac", "1", "-i", pcmPath, outputPath)
	if err != nil {
		return fmt.Errorf("wrap pcm: %w", err)
	}
	return nil
}

func inlineAudio(result *genai.GenerateContentResponse) []byte {
	if result == nil || len(result.Candidates) == 0 || result.Candidates[0].Content == nil {
		return nil
	}
	var pcm []byte
	for _, part := range result.Candidates[0].Content.Parts {
		if part != nil && part.InlineData != nil {
			pcm = append(pcm, part.InlineData.Data...)
		}
	}
	return pcm
}

func (g *GeminiSpeech) Extension() string { return "wav" }
func (g *GeminiSpeech) Close() error      { return nil }

// concatAudio joins audio files with the ffmpeg concat demuxer.
func concatAudio(ctx context.Context, exec common.Executor, files []string, outputPath string) error {
	listPath := outputPath + ".list.txt"
	if err := writeConcatList(listPath, files); err != nil {
		return err
	}
	defer os.Remove(listPath)

	_, err := exec.Execute(ctx, "ffmpeg", "-y", "-f", "concat", "-safe", "0", "-i", listPath, "-c", "copy", outputPath)
	if err != nil {
		return fmt.Errorf("concat audio: %w", err)
	}
	return nil
}

var (
	reBold       = regexp.MustCompile(`\*\*([^*]+)\*\*`)
	reItalic     = regexp.MustCompile(`\*([^*]+)\*`)
	reHeading    = regexp.MustCompile(`#+\s*`)
	reOddSymbols = regexp.MustCompile(`[^\p{L}\p{M}\p{N}\s.,!?;:\-()"'।]`)
	reSpaces     = regexp.MustCompile(`\s+`)
	reSentence   = regexp.MustCompile(`[.!?।]+\s+`)
)

// cleanTextForTTS strips markdown and symbols engines tend to read aloud.
func cleanTextForTTS(text string) string {
	text = reBold.ReplaceAllString(text, "$1")
	text = reItalic.ReplaceAllString(text, "$1")
	text = reHeading.ReplaceAllString(text, "")
	text = reOddSymbols.ReplaceAllString(text, " ")
	text = reSpaces.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// splitTextIntoChunks packs whole sentences into chunks of at most maxLength
// bytes. A single sentence longer than maxLength becomes its own chunk.
func splitTextIntoChunks(text string, maxLength int) []string {
	if len(text) <= maxLength {
		return []string{text}
	}

	var sentences []string
	last := 0
	for _, loc := range reSentence.FindAllStringIndex(text, -1) {
		sentences = append(sentences, strings.TrimSpace(text[last:loc[1]]))
		last = loc[1]
	}
	if rest := strings.TrimSpace(text[last:]); rest != "" {
		sentences = append(sentences, rest)
	}

	var chunks []string
	current := ""
	for _, sentence := range sentences {
		switch {
		case current == "":
			current = sentence
		case len(current)+1+len(sentence) <= maxLength:
			current += " " + sentence
		default:
			chunks = append(chunks, current)
			current = sentence
		}
	}
	if current != "" {
		chunks = append(chunks, current)
	}
	return chunks
}
