// Package deepgram implements capture.Recognizer over the Deepgram live websocket API.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rbright/resq/internal/capture"
)

// Keyword is one boosted recognition term.
type Keyword struct {
	Term  string
	Boost float64
}

// Config controls Deepgram websocket settings.
type Config struct {
	APIKey        string
	ListenURL     string
	Model         string
	SmartFormat   bool
	EndpointingMS int
	Keywords      []Keyword
	DialTimeout   time.Duration
}

// Recognizer starts Deepgram live sessions.
type Recognizer struct {
	cfg    Config
	dialer *websocket.Dialer
}

// New constructs a recognizer with defaults for empty fields.
func New(cfg Config) *Recognizer {
	if strings.TrimSpace(cfg.ListenURL) == "" {
		cfg.ListenURL = "https://api.deepgram.com/v1/listen"
	}
	if cfg.Model == "" {
		cfg.Model = "nova-2"
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = cfg.DialTimeout
	return &Recognizer{cfg: cfg, dialer: &dialer}
}

// Start dials the listen endpoint. A missing API key is reported as
// capture.ErrUnsupported without touching the network.
func (r *Recognizer) Start(ctx context.Context, opts capture.StreamOptions) (capture.Recognition, error) {
	if strings.TrimSpace(r.cfg.APIKey) == "" {
		return nil, fmt.Errorf("%w: DEEPGRAM_API_KEY is not configured", capture.ErrUnsupported)
	}

	wsURL, err := buildListenURL(r.cfg, opts)
	if err != nil {
		return nil, err
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+r.cfg.APIKey)

	conn, resp, err := r.dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("connect to deepgram: %w (status %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("connect to deepgram: %w", err)
	}

	s := &session{
		conn:     conn,
		segments: make(chan capture.Segment, 64),
		audio:    make(chan []byte, 32),
		closing:  make(chan struct{}),
		readDone: make(chan struct{}),
		done:     make(chan struct{}),
	}

	s.wg.Add(2)
	go s.readLoop()
	go s.writeLoop()
	go func() {
		s.wg.Wait()
		close(s.segments)
		close(s.done)
		_ = conn.Close()
	}()

	go func() {
		select {
		case <-ctx.Done():
			_ = s.Close()
		case <-s.done:
		}
	}()

	return s, nil
}

type session struct {
	conn *websocket.Conn

	segments chan capture.Segment
	audio    chan []byte
	closing  chan struct{}
	readDone chan struct{}
	done     chan struct{}

	wg sync.WaitGroup

	errMu sync.Mutex
	err   error

	closeSendOnce sync.Once
	closeOnce     sync.Once
	sendMu        sync.RWMutex
	sendClosed    bool
}

func (s *session) SendAudio(chunk []byte) error {
	if len(chunk) == 0 {
		return nil
	}

	s.sendMu.RLock()
	defer s.sendMu.RUnlock()
	if s.sendClosed {
		return errors.New("audio stream is already closed")
	}

	copied := append([]byte(nil), chunk...)
	select {
	case s.audio <- copied:
		return nil
	case <-s.done:
		if err := s.waitErr(); err != nil {
			return err
		}
		return errors.New("recognition session closed")
	}
}

func (s *session) CloseSend() error {
	s.closeSendOnce.Do(func() {
		s.sendMu.Lock()
		s.sendClosed = true
		close(s.audio)
		s.sendMu.Unlock()
	})
	return nil
}

func (s *session) Segments() <-chan capture.Segment {
	return s.segments
}

func (s *session) Wait() error {
	<-s.done
	return s.waitErr()
}

func (s *session) Close() error {
	s.closeOnce.Do(func() {
		close(s.closing)
		_ = s.CloseSend()
		_ = s.conn.Close()
	})
	<-s.done
	return s.waitErr()
}

func (s *session) waitErr() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

// setErr keeps the first non-close error.
func (s *session) setErr(err error) {
	if err == nil {
		return
	}
	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	) {
		return
	}

	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func (s *session) writeLoop() {
	defer s.wg.Done()

	for {
		select {
		case chunk, ok := <-s.audio:
			if !ok {
				if err := s.conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"CloseStream"}`)); err != nil {
					s.setErr(fmt.Errorf("close stream: %w", err))
				}
				return
			}
			if err := s.conn.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
				s.setErr(fmt.Errorf("send audio: %w", err))
				_ = s.conn.Close()
				return
			}
		case <-s.readDone:
			return
		}
	}
}

func (s *session) readLoop() {
	defer s.wg.Done()
	defer close(s.readDone)

	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			s.setErr(fmt.Errorf("read deepgram event: %w", err))
			return
		}

		var response listenResponse
		if err := json.Unmarshal(payload, &response); err != nil {
			continue
		}

		if strings.EqualFold(response.Type, "Error") {
			message := strings.TrimSpace(response.Message)
			if message == "" {
				message = strings.TrimSpace(response.Description)
			}
			if message == "" {
				message = "deepgram returned an unknown error"
			}
			s.setErr(errors.New(message))
			return
		}

		text := extractTranscript(response)
		if text == "" {
			continue
		}
		s.emit(capture.Segment{
			Text:        text,
			Final:       response.IsFinal || response.SpeechFinal,
			SpeechFinal: response.SpeechFinal,
		})
	}
}

// emit drops interim segments when the consumer lags; finals wait until Close.
func (s *session) emit(seg capture.Segment) {
	if !seg.Final {
		select {
		case s.segments <- seg:
		default:
		}
		return
	}
	select {
	case s.segments <- seg:
	case <-s.closing:
	}
}

type listenResponse struct {
	Type        string `json:"type"`
	Message     string `json:"message"`
	Description string `json:"description"`
	IsFinal     bool   `json:"is_final"`
	SpeechFinal bool   `json:"speech_final"`

	Channel struct {
		Alternatives []alternative `json:"alternatives"`
	} `json:"channel"`

	Results struct {
		Channels []struct {
			Alternatives []alternative `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

type alternative struct {
	Transcript string `json:"transcript"`
}

func extractTranscript(response listenResponse) string {
	if len(response.Channel.Alternatives) > 0 {
		if text := strings.TrimSpace(response.Channel.Alternatives[0].Transcript); text != "" {
			return text
		}
	}
	if len(response.Results.Channels) > 0 && len(response.Results.Channels[0].Alternatives) > 0 {
		return strings.TrimSpace(response.Results.Channels[0].Alternatives[0].Transcript)
	}
	return ""
}

func buildListenURL(cfg Config, opts capture.StreamOptions) (string, error) {
	base := strings.TrimSpace(cfg.ListenURL)
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}

	listenURL, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil {
		return "", fmt.Errorf("invalid deepgram listen url: %w", err)
	}
	if listenURL.Scheme != "ws" && listenURL.Scheme != "wss" {
		return "", fmt.Errorf("invalid deepgram listen url %q: scheme must be http(s) or ws(s)", cfg.ListenURL)
	}

	if opts.SampleRate <= 0 {
		opts.SampleRate = 16000
	}
	if opts.Channels <= 0 {
		opts.Channels = 1
	}

	query := listenURL.Query()
	query.Set("model", cfg.Model)
	query.Set("encoding", "linear16")
	query.Set("sample_rate", strconv.Itoa(opts.SampleRate))
	query.Set("channels", strconv.Itoa(opts.Channels))
	query.Set("interim_results", "true")
	query.Set("smart_format", strconv.FormatBool(cfg.SmartFormat))
	if cfg.EndpointingMS > 0 {
		query.Set("endpointing", strconv.Itoa(cfg.EndpointingMS))
	}
	if opts.Language != "" {
		query.Set("language", opts.Language)
	}
	for _, kw := range cfg.Keywords {
		term := strings.TrimSpace(kw.Term)
		if term == "" {
			continue
		}
		if kw.Boost != 0 {
			term = term + ":" + strconv.FormatFloat(kw.Boost, 'f', -1, 64)
		}
		query.Add("keywords", term)
	}
	listenURL.RawQuery = query.Encode()
	return listenURL.String(), nil
}
