package asr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
)

const defaultDeepgramURL = "wss://api.deepgram.com/v1/listen"

// DeepgramConfig holds Deepgram live-streaming credentials and tuning.
type DeepgramConfig struct {
	APIKey        string
	URL           string
	Model         string
	EndpointingMS int
}

// Deepgram dials the Deepgram live transcription websocket.
type Deepgram struct {
	cfg    DeepgramConfig
	logger *slog.Logger
	dialer *websocket.Dialer
}

func NewDeepgram(cfg DeepgramConfig, logger *slog.Logger) *Deepgram {
	return &Deepgram{cfg: cfg, logger: logger, dialer: websocket.DefaultDialer}
}

// ListenURL builds the streaming endpoint with query parameters for cfg.
func (d *Deepgram) ListenURL(cfg Config) (string, error) {
	cfg = cfg.withDefaults()

	base := strings.TrimSpace(d.cfg.URL)
	if base == "" {
		base = defaultDeepgramURL
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse deepgram url %q: %w", base, err)
	}

	q := u.Query()
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(cfg.SampleRate))
	q.Set("channels", "1")
	q.Set("language", cfg.Language)
	q.Set("interim_results", strconv.FormatBool(cfg.InterimResults))
	q.Set("punctuate", strconv.FormatBool(cfg.AutomaticPunctuation))
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = strings.TrimSpace(d.cfg.Model)
	}
	if model != "" {
		q.Set("model", model)
	}
	if d.cfg.EndpointingMS > 0 {
		q.Set("endpointing", strconv.Itoa(d.cfg.EndpointingMS))
	}
	for _, phrase := range cfg.Phrases {
		text := strings.TrimSpace(phrase.Phrase)
		if text == "" {
			continue
		}
		if phrase.Boost > 0 {
			text = fmt.Sprintf("%s:%g", text, phrase.Boost)
		}
		q.Add("keywords", text)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Dial opens the websocket and starts the receive loop.
func (d *Deepgram) Dial(ctx context.Context, cfg Config, handler Handler) (Stream, error) {
	if strings.TrimSpace(d.cfg.APIKey) == "" {
		return nil, errors.New("deepgram.api_key is empty")
	}
	cfg = cfg.withDefaults()

	endpoint, err := d.ListenURL(cfg)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	header.Set("Authorization", "Token "+strings.TrimSpace(d.cfg.APIKey))

	dialCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()

	conn, resp, err := d.dialer.DialContext(dialCtx, endpoint, header)
	if err != nil {
		code := ""
		if resp != nil {
			code = strconv.Itoa(resp.StatusCode)
		}
		return nil, &StreamError{Code: code, Err: fmt.Errorf("dial deepgram: %w", err)}
	}

	s := newDeepgramStream(conn, handler, d.logger)
	go s.recvLoop()
	return s, nil
}

// deepgramMessage is the subset of server messages the stream consumes.
type deepgramMessage struct {
	Type    string `json:"type"`
	Channel struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
		} `json:"alternatives"`
	} `json:"channel"`
	IsFinal     bool `json:"is_final"`
	SpeechFinal bool `json:"speech_final"`
}

type deepgramStream struct {
	conn     *websocket.Conn
	handler  Handler
	logger   *slog.Logger
	recvDone chan struct{}

	writeMu sync.Mutex

	mu         sync.Mutex
	recvErr    error
	closedSend bool
	cancelled  bool

	// Receive-goroutine state.
	current utterance
}

func newDeepgramStream(conn *websocket.Conn, handler Handler, logger *slog.Logger) *deepgramStream {
	if handler == nil {
		handler = func(Result) {}
	}
	return &deepgramStream{
		conn:     conn,
		handler:  handler,
		logger:   logger,
		recvDone: make(chan struct{}),
	}
}

func (s *deepgramStream) recvLoop() {
	defer close(s.recvDone)
	defer s.flushUtterance()

	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			s.recordReadError(err)
			return
		}

		var msg deepgramMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			s.debug("deepgram: skipping undecodable message", err)
			continue
		}
		s.handleMessage(msg)
	}
}

// handleMessage folds is_final fragments into one utterance per speech_final.
func (s *deepgramStream) handleMessage(msg deepgramMessage) {
	switch msg.Type {
	case "Results":
	case "UtteranceEnd":
		s.flushUtterance()
		return
	default:
		return
	}

	text := ""
	if len(msg.Channel.Alternatives) > 0 {
		text = cleanSegment(msg.Channel.Alternatives[0].Transcript)
	}

	if !msg.IsFinal {
		if preview := s.current.preview(text); preview != "" {
			s.handler(Result{Text: preview})
		}
		return
	}

	s.current.commit(text)
	if msg.SpeechFinal {
		s.flushUtterance()
	} else if preview := s.current.preview(""); preview != "" {
		s.handler(Result{Text: preview})
	}
}

func (s *deepgramStream) flushUtterance() {
	if s.current.empty() {
		return
	}
	if text := s.current.flush(); text != "" {
		s.handler(Result{Text: text, Final: true})
	}
}

func (s *deepgramStream) recordReadError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		return
	}
	if s.cancelled || (s.closedSend && errors.Is(err, net.ErrClosed)) {
		return
	}

	code := ""
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		code = strconv.Itoa(closeErr.Code)
	}
	s.recvErr = &StreamError{Code: code, Err: fmt.Errorf("receive deepgram results: %w", err)}
}

func (s *deepgramStream) SendAudio(chunk []byte) error {
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

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.BinaryMessage, chunk)
}

// Close asks the server to flush remaining results and waits for it to hang up.
func (s *deepgramStream) Close(ctx context.Context) error {
	s.mu.Lock()
	alreadyClosed := s.closedSend
	s.closedSend = true
	s.mu.Unlock()

	if !alreadyClosed {
		s.writeMu.Lock()
		err := s.conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"CloseStream"}`))
		s.writeMu.Unlock()
		if err != nil {
			_ = s.conn.Close()
			<-s.recvDone
			return fmt.Errorf("send deepgram close: %w", err)
		}
	}

	select {
	case <-s.recvDone:
	case <-ctx.Done():
		_ = s.Cancel()
		return ctx.Err()
	}
	_ = s.conn.Close()
	return s.Err()
}

func (s *deepgramStream) Cancel() error {
	s.mu.Lock()
	s.closedSend = true
	s.cancelled = true
	s.mu.Unlock()
	return s.conn.Close()
}

func (s *deepgramStream) Done() <-chan struct{} { return s.recvDone }

func (s *deepgramStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recvErr
}

func (s *deepgramStream) debug(message string, err error) {
	if s.logger == nil || err == nil {
		return
	}
	s.logger.Debug(message, "error", err.Error())
}
