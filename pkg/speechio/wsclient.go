package speechio

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/elazer/go-sunny/internal/log"
)

// serverEvent is one message from the speech service.
type serverEvent struct {
	Type  string `json:"type"`
	Audio string `json:"audio,omitempty"` // base64 audio payload
	Codec string `json:"codec,omitempty"` // "pcm16" (default) or "opus"
	Text  string `json:"text,omitempty"`
	Error string `json:"error,omitempty"`
}

// sessionStart is the first message sent to the service.
type sessionStart struct {
	Type       string `json:"type"`
	Voice      string `json:"voice"`
	Microphone int    `json:"microphone"`
	Speaker    int    `json:"speaker"`
	SampleRate int    `json:"sample_rate"`
}

// WSClient streams a speech session from a websocket service. Audio arrives
// as base64 PCM16 frames, or opus frames decoded before delivery.
type WSClient struct {
	config *Config

	mu      sync.RWMutex
	conn    *websocket.Conn
	started bool
	cancel  context.CancelFunc

	opusDec *Decoder

	onAudioChunk    func(pcm []byte)
	onUserText      func(text string)
	onAssistantText func(text string)
}

// NewWSClient creates a websocket speech client. A URL is required.
func NewWSClient(opts ...Option) (*WSClient, error) {
	cfg := DefaultClientConfig()
	cfg.Apply(opts...)

	if cfg.URL == "" {
		return nil, ErrMissingURL
	}

	return &WSClient{config: cfg}, nil
}

// OnAudioChunk implements Client.
func (w *WSClient) OnAudioChunk(fn func(pcm []byte)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onAudioChunk = fn
}

// OnUserText implements Client.
func (w *WSClient) OnUserText(fn func(text string)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onUserText = fn
}

// OnAssistantText implements Client.
func (w *WSClient) OnAssistantText(fn func(text string)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onAssistantText = fn
}

// Start implements Client. It dials the service, sends the session start
// message, and begins the read loop.
func (w *WSClient) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return ErrAlreadyStarted
	}
	w.mu.Unlock()

	dialer := websocket.Dialer{HandshakeTimeout: w.config.Timeout}
	conn, resp, err := dialer.DialContext(ctx, w.config.URL, nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("%w: status %d: %v", ErrConnectionFailed, resp.StatusCode, err)
		}
		return fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	start := sessionStart{
		Type:       "session_start",
		Voice:      w.config.Voice,
		Microphone: w.config.Microphone,
		Speaker:    w.config.Speaker,
		SampleRate: w.config.SampleRate,
	}
	if err := conn.WriteJSON(start); err != nil {
		conn.Close()
		return fmt.Errorf("%w: session start: %v", ErrConnectionFailed, err)
	}

	readCtx, cancel := context.WithCancel(context.Background())

	w.mu.Lock()
	w.conn = conn
	w.started = true
	w.cancel = cancel
	w.mu.Unlock()

	go w.readLoop(readCtx)

	log.Info("speech session started", "url", w.config.URL, "voice", w.config.Voice)
	return nil
}

// Stop implements Client.
func (w *WSClient) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.started {
		return nil
	}

	if w.cancel != nil {
		w.cancel()
	}

	if w.conn != nil {
		deadline := time.Now().Add(time.Second)
		_ = w.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			deadline,
		)
		w.conn.Close()
		w.conn = nil
	}

	w.started = false
	log.Info("speech session stopped")
	return nil
}

// readLoop decodes service events until the connection drops or the
// session is cancelled.
func (w *WSClient) readLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		w.mu.RLock()
		conn := w.conn
		w.mu.RUnlock()
		if conn == nil {
			return
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				log.Warn("speech connection closed", "error", err)
			}
			return
		}

		var event serverEvent
		if err := json.Unmarshal(data, &event); err != nil {
			log.Warn("invalid speech event", "error", err)
			continue
		}

		w.handleEvent(event)
	}
}

func (w *WSClient) handleEvent(event serverEvent) {
	switch event.Type {
	case "audio":
		raw, err := base64.StdEncoding.DecodeString(event.Audio)
		if err != nil {
			log.Warn("invalid audio payload", "error", err)
			return
		}
		pcm, err := w.decodeAudio(raw, event.Codec)
		if err != nil {
			log.Warn("audio decode failed", "codec", event.Codec, "error", err)
			return
		}
		w.mu.RLock()
		fn := w.onAudioChunk
		w.mu.RUnlock()
		if fn != nil {
			fn(pcm)
		}

	case "user_text":
		w.mu.RLock()
		fn := w.onUserText
		w.mu.RUnlock()
		if fn != nil {
			fn(event.Text)
		}

	case "assistant_text":
		w.mu.RLock()
		fn := w.onAssistantText
		w.mu.RUnlock()
		if fn != nil {
			fn(event.Text)
		}

	case "error":
		log.Error("speech service error", "message", event.Error)
	}
}

// decodeAudio converts a raw payload to PCM16 little-endian bytes.
func (w *WSClient) decodeAudio(raw []byte, codec string) ([]byte, error) {
	if codec != "opus" {
		return raw, nil
	}

	w.mu.Lock()
	if w.opusDec == nil {
		dec, err := NewDecoder(w.config.SampleRate)
		if err != nil {
			w.mu.Unlock()
			return nil, err
		}
		w.opusDec = dec
	}
	dec := w.opusDec
	w.mu.Unlock()

	return dec.Decode(raw)
}

var _ Client = (*WSClient)(nil)
