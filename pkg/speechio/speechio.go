// Package speechio connects the head controller to a speech service that
// streams synthesized audio and transcript text over a websocket. The head
// controller only consumes PCM16 chunks and text lines; everything about
// the speech backend stays behind the Client interface, so tests and sim
// mode run against the Mock.
package speechio

import (
	"context"
	"errors"
	"time"
)

// Client is the interface the head controller drives a speech session with.
// Set callbacks before Start; they are invoked from the client's read loop
// and must not block.
type Client interface {
	// Start connects and begins streaming. It returns once the session is
	// established; audio and text arrive via the callbacks.
	Start(ctx context.Context) error

	// Stop ends the session and releases the connection. Safe to call twice.
	Stop() error

	// OnAudioChunk sets the callback for PCM16 little-endian mono audio.
	OnAudioChunk(fn func(pcm []byte))

	// OnUserText sets the callback for recognized user speech.
	OnUserText(fn func(text string))

	// OnAssistantText sets the callback for text the head is speaking.
	OnAssistantText(fn func(text string))
}

// Sentinel errors for the speechio package.
var (
	ErrMissingURL       = errors.New("speechio: service URL is required")
	ErrNotStarted       = errors.New("speechio: session not started")
	ErrAlreadyStarted   = errors.New("speechio: session already started")
	ErrConnectionFailed = errors.New("speechio: connection failed")
)

// Config holds session parameters for a speech client.
type Config struct {
	URL        string
	Voice      string
	Microphone int
	Speaker    int
	SampleRate int
	Timeout    time.Duration
}

// DefaultClientConfig returns the defaults a session starts from.
func DefaultClientConfig() *Config {
	return &Config{
		Voice:      "matthew",
		Microphone: -1,
		Speaker:    -1,
		SampleRate: 24000,
		Timeout:    10 * time.Second,
	}
}

// Option configures a speech client.
type Option func(*Config)

// WithURL sets the speech service websocket URL.
func WithURL(url string) Option {
	return func(c *Config) { c.URL = url }
}

// WithVoice sets the voice ID for synthesis.
func WithVoice(voice string) Option {
	return func(c *Config) { c.Voice = voice }
}

// WithMicrophone sets the microphone device index. -1 uses the default.
func WithMicrophone(index int) Option {
	return func(c *Config) { c.Microphone = index }
}

// WithSpeaker sets the speaker device index. -1 uses the default.
func WithSpeaker(index int) Option {
	return func(c *Config) { c.Speaker = index }
}

// WithSampleRate sets the expected PCM sample rate in Hz.
func WithSampleRate(rate int) Option {
	return func(c *Config) { c.SampleRate = rate }
}

// WithTimeout sets the connect handshake timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) { c.Timeout = d }
}

// Apply applies options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}
