package asr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	speech "cloud.google.com/go/speech/apiv2"
	"cloud.google.com/go/speech/apiv2/speechpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
)

// GoogleConfig holds Cloud Speech-to-Text v2 credentials and routing.
type GoogleConfig struct {
	ProjectID       string
	Region          string
	Recognizer      string
	APIKey          string
	CredentialsFile string
	// DebugResponses, when set, receives every response as one JSON line.
	DebugResponses io.Writer
}

// RecognizerName returns the fully qualified recognizer resource.
func (c GoogleConfig) RecognizerName() string {
	recognizer := strings.TrimSpace(c.Recognizer)
	if recognizer == "" {
		recognizer = "_"
	}
	if strings.HasPrefix(recognizer, "projects/") {
		return recognizer
	}
	return fmt.Sprintf("projects/%s/locations/%s/recognizers/%s", c.ProjectID, c.location(), recognizer)
}

func (c GoogleConfig) location() string {
	region := strings.TrimSpace(c.Region)
	if region == "" {
		return "global"
	}
	return region
}

// ClientOptions builds API client options from the configured credentials.
func (c GoogleConfig) ClientOptions() []option.ClientOption {
	opts := make([]option.ClientOption, 0, 4)
	if key := strings.TrimSpace(c.APIKey); key != "" {
		opts = append(opts, option.WithAPIKey(key))
	}
	if file := strings.TrimSpace(c.CredentialsFile); file != "" {
		opts = append(opts, option.WithCredentialsFile(file))
	}
	if project := strings.TrimSpace(c.ProjectID); project != "" {
		opts = append(opts, option.WithQuotaProject(project))
	}
	if location := c.location(); location != "global" {
		opts = append(opts, option.WithEndpoint(fmt.Sprintf("%s-speech.googleapis.com:443", location)))
	}
	return opts
}

// Google dials Cloud Speech-to-Text v2 streaming recognition.
type Google struct {
	cfg    GoogleConfig
	logger *slog.Logger
}

func NewGoogle(cfg GoogleConfig, logger *slog.Logger) *Google {
	return &Google{cfg: cfg, logger: logger}
}

// Dial opens the client, sends the streaming config, and starts the receive loop.
func (g *Google) Dial(ctx context.Context, cfg Config, handler Handler) (Stream, error) {
	if strings.TrimSpace(g.cfg.ProjectID) == "" {
		return nil, errors.New("google.project_id is empty")
	}
	cfg = cfg.withDefaults()

	client, err := speech.NewClient(ctx, g.cfg.ClientOptions()...)
	if err != nil {
		return nil, fmt.Errorf("create speech client: %w", err)
	}

	streamCtx, cancel := context.WithCancel(ctx)
	var rpc speechpb.Speech_StreamingRecognizeClient
	err = runWithTimeout(ctx, cfg.DialTimeout, func() error {
		var openErr error
		rpc, openErr = client.StreamingRecognize(streamCtx)
		if openErr != nil {
			return openErr
		}
		return rpc.Send(&speechpb.StreamingRecognizeRequest{
			Recognizer: g.cfg.RecognizerName(),
			StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
				StreamingConfig: streamingConfig(cfg),
			},
		})
	})
	if err != nil {
		cancel()
		_ = client.Close()
		return nil, grpcStreamError("open streaming recognizer", err)
	}

	s := newGoogleStream(rpc, handler, g.cfg.DebugResponses)
	s.release = func() {
		cancel()
		_ = client.Close()
	}
	go s.recvLoop()
	return s, nil
}

// streamingConfig maps a stream config onto the v2 request shape.
func streamingConfig(cfg Config) *speechpb.StreamingRecognitionConfig {
	recognition := &speechpb.RecognitionConfig{
		DecodingConfig: &speechpb.RecognitionConfig_ExplicitDecodingConfig{
			ExplicitDecodingConfig: &speechpb.ExplicitDecodingConfig{
				Encoding:          speechpb.ExplicitDecodingConfig_LINEAR16,
				SampleRateHertz:   int32(cfg.SampleRate),
				AudioChannelCount: 1,
			},
		},
		Features: &speechpb.RecognitionFeatures{
			EnableAutomaticPunctuation: cfg.AutomaticPunctuation,
		},
		LanguageCodes: []string{cfg.Language},
		Model:         strings.TrimSpace(cfg.Model),
	}

	phrases := make([]*speechpb.PhraseSet_Phrase, 0, len(cfg.Phrases))
	for _, phrase := range cfg.Phrases {
		text := strings.TrimSpace(phrase.Phrase)
		if text == "" {
			continue
		}
		phrases = append(phrases, &speechpb.PhraseSet_Phrase{Value: text, Boost: phrase.Boost})
	}
	if len(phrases) > 0 {
		recognition.Adaptation = &speechpb.SpeechAdaptation{
			PhraseSets: []*speechpb.SpeechAdaptation_AdaptationPhraseSet{{
				Value: &speechpb.SpeechAdaptation_AdaptationPhraseSet_InlinePhraseSet{
					InlinePhraseSet: &speechpb.PhraseSet{Phrases: phrases},
				},
			}},
		}
	}

	return &speechpb.StreamingRecognitionConfig{
		Config: recognition,
		StreamingFeatures: &speechpb.StreamingRecognitionFeatures{
			InterimResults: cfg.InterimResults,
		},
	}
}

// googleStream wraps one active StreamingRecognize RPC lifecycle.
type googleStream struct {
	rpc      speechpb.Speech_StreamingRecognizeClient
	handler  Handler
	debug    io.Writer
	release  func()
	recvDone chan struct{}

	mu         sync.Mutex
	recvErr    error
	closedSend bool
	released   bool
}

func newGoogleStream(rpc speechpb.Speech_StreamingRecognizeClient, handler Handler, debug io.Writer) *googleStream {
	if handler == nil {
		handler = func(Result) {}
	}
	return &googleStream{
		rpc:      rpc,
		handler:  handler,
		debug:    debug,
		recvDone: make(chan struct{}),
	}
}

// recvLoop receives responses until the server ends the stream or fails.
func (s *googleStream) recvLoop() {
	defer close(s.recvDone)

	for {
		resp, err := s.rpc.Recv()
		if err == nil {
			s.handleResponse(resp)
			continue
		}
		if errors.Is(err, io.EOF) {
			return
		}

		s.mu.Lock()
		if !s.closedSend || status.Code(err) != codes.Canceled {
			s.recvErr = grpcStreamError("receive recognition results", err)
		}
		s.mu.Unlock()
		return
	}
}

// handleResponse emits finals individually and joins the remaining interims.
func (s *googleStream) handleResponse(resp *speechpb.StreamingRecognizeResponse) {
	if s.debug != nil {
		if b, err := protojson.Marshal(resp); err == nil {
			_, _ = s.debug.Write(append(b, '\n'))
		}
	}

	var interim []string
	for _, result := range resp.GetResults() {
		alternatives := result.GetAlternatives()
		if len(alternatives) == 0 {
			continue
		}
		text := cleanSegment(alternatives[0].GetTranscript())
		if text == "" {
			continue
		}
		if result.GetIsFinal() {
			s.handler(Result{Text: text, Final: true})
			continue
		}
		interim = append(interim, text)
	}
	if len(interim) > 0 {
		s.handler(Result{Text: strings.Join(interim, " ")})
	}
}

func (s *googleStream) SendAudio(chunk []byte) error {
	if len(chunk) == 0 {
		return nil
	}

	s.mu.Lock()
	closed := s.closedSend
	recvErr := s.recvErr
	s.mu.Unlock()

	if closed {
		return ErrStreamClosed
	}
	if recvErr != nil {
		return fmt.Errorf("stream receive loop failed: %w", recvErr)
	}

	return s.rpc.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_Audio{Audio: chunk},
	})
}

func (s *googleStream) Close(ctx context.Context) error {
	s.closeSend()

	select {
	case <-s.recvDone:
	case <-ctx.Done():
		s.releaseOnce()
		return ctx.Err()
	}
	s.releaseOnce()
	return s.Err()
}

func (s *googleStream) Cancel() error {
	s.closeSend()
	s.releaseOnce()
	return nil
}

func (s *googleStream) Done() <-chan struct{} { return s.recvDone }

func (s *googleStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recvErr
}

func (s *googleStream) closeSend() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closedSend {
		s.closedSend = true
		_ = s.rpc.CloseSend()
	}
}

func (s *googleStream) releaseOnce() {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return
	}
	s.released = true
	release := s.release
	s.mu.Unlock()

	if release != nil {
		release()
	}
}

// grpcStreamError tags err with its gRPC status code.
func grpcStreamError(op string, err error) error {
	code := ""
	if st, ok := status.FromError(err); ok && st.Code() != codes.Unknown {
		code = st.Code().String()
	}
	return &StreamError{Code: code, Err: fmt.Errorf("%s: %w", op, err)}
}
