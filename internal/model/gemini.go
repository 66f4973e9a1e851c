package model

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// DefaultModel is the live model used when none is configured.
const DefaultModel = "models/gemini-2.0-flash-live-001"

const endpointFormat = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1alpha.GenerativeService.BidiGenerateContent?key=%s"

// LiveClient streams conversational turns from the Gemini live API. The rest
// of the pipeline only consumes the free-text fragments it emits; the wire
// shapes here are the interface boundary with the model collaborator.
type LiveClient struct {
	apiKey      string
	model       string
	instruction string

	fragments chan string
	audioData chan []byte
	stopCh    chan struct{}

	mu        sync.RWMutex
	conn      *websocket.Conn
	connected bool
}

type setupMessage struct {
	Setup setupPayload `json:"setup"`
}

type setupPayload struct {
	Model             string           `json:"model"`
	GenerationConfig  generationConfig `json:"generationConfig"`
	SystemInstruction *content         `json:"systemInstruction,omitempty"`
}

type generationConfig struct {
	ResponseModalities []string `json:"responseModalities"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type serverMessage struct {
	SetupComplete *struct{}      `json:"setupComplete,omitempty"`
	ServerContent *serverContent `json:"serverContent,omitempty"`
}

type serverContent struct {
	InputTranscription *part    `json:"inputTranscription,omitempty"`
	ModelTurn          *content `json:"modelTurn,omitempty"`
}

type realtimeInputMessage struct {
	RealtimeInput realtimeInput `json:"realtimeInput"`
}

type realtimeInput struct {
	MediaChunks []mediaChunk `json:"mediaChunks"`
}

type mediaChunk struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

// NewLiveClient creates a client. The instruction is the session's free-form
// menu/ordering prompt sent as the system instruction.
func NewLiveClient(apiKey, instruction string) *LiveClient {
	return &LiveClient{
		apiKey:      apiKey,
		model:       DefaultModel,
		instruction: instruction,
		fragments:   make(chan string, 100),
		audioData:   make(chan []byte, 1000),
		stopCh:      make(chan struct{}),
	}
}

// WithModel overrides the default model name.
func (c *LiveClient) WithModel(model string) *LiveClient {
	if model != "" {
		c.model = model
	}
	return c
}

// Fragments returns the channel of free-text fragments from the model stream.
func (c *LiveClient) Fragments() <-chan string { return c.fragments }

// Connect establishes the WebSocket connection and sends the session setup.
func (c *LiveClient) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connected {
		return nil
	}
	if c.apiKey == "" {
		return fmt.Errorf("model api key is empty")
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.Dial(fmt.Sprintf(endpointFormat, c.apiKey), nil)
	if err != nil {
		if resp != nil {
			log.Printf("model: connection failed with status %d", resp.StatusCode)
		}
		return fmt.Errorf("failed to connect to model stream: %w", err)
	}

	setup := setupMessage{Setup: setupPayload{
		Model:            c.model,
		GenerationConfig: generationConfig{ResponseModalities: []string{"TEXT"}},
	}}
	instruction := c.instruction
	if instruction == "" {
		instruction = "You are a voice transcription assistant. Simply transcribe what the user says clearly and accurately."
	} else {
		instruction += "\n\nPlease respond to the user's voice input according to the instruction above. Be concise and helpful."
	}
	setup.Setup.SystemInstruction = &content{Parts: []part{{Text: instruction}}}
	if err := conn.WriteJSON(setup); err != nil {
		_ = conn.Close()
		return fmt.Errorf("send model setup: %w", err)
	}

	c.conn = conn
	c.connected = true
	go c.handleMessages()
	go c.sendAudioData()
	log.Printf("model: connected, model=%s", c.model)
	return nil
}

// SendPCM16 queues a 16kHz little-endian PCM chunk for the model. The chunk
// is base64-wrapped in a realtimeInput frame.
func (c *LiveClient) SendPCM16(pcm []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.connected {
		return fmt.Errorf("not connected to model stream")
	}
	select {
	case c.audioData <- pcm:
		return nil
	default:
		log.Println("model: audio buffer full, dropping chunk")
		return nil
	}
}

// Close terminates the stream. The fragments channel is closed by the reader
// goroutine once it observes the shutdown, never from here: closing it while
// a fragment is in flight would turn a legal Close into a panic.
func (c *LiveClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return nil
	}
	close(c.stopCh)
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.connected = false
	c.conn = nil
	log.Println("model: connection closed")
	return nil
}

// handleMessages owns the fragments channel: it is the only sender and closes
// it on exit.
func (c *LiveClient) handleMessages() {
	defer close(c.fragments)
	for {
		select {
		case <-c.stopCh:
			return
		default:
			c.mu.RLock()
			conn := c.conn
			c.mu.RUnlock()
			if conn == nil {
				return
			}
			_, data, err := conn.ReadMessage()
			if err != nil {
				select {
				case <-c.stopCh:
				default:
					log.Printf("model: read error: %v", err)
				}
				return
			}
			c.processMessage(data)
		}
	}
}

func (c *LiveClient) processMessage(data []byte) {
	var msg serverMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Printf("model: error unmarshaling message: %v", err)
		return
	}
	if msg.SetupComplete != nil {
		log.Println("model: setup complete, session ready")
		return
	}
	if msg.ServerContent == nil {
		return
	}
	if t := msg.ServerContent.InputTranscription; t != nil && t.Text != "" {
		c.emit(t.Text)
	}
	if turn := msg.ServerContent.ModelTurn; turn != nil {
		for _, p := range turn.Parts {
			if p.Text != "" {
				c.emit(p.Text)
			}
		}
	}
}

// emit delivers a fragment without dropping; every fragment matters for
// payload completion downstream.
func (c *LiveClient) emit(text string) {
	select {
	case <-c.stopCh:
	case c.fragments <- text:
	}
}

func (c *LiveClient) sendAudioData() {
	for {
		select {
		case <-c.stopCh:
			return
		case pcm, ok := <-c.audioData:
			if !ok {
				return
			}
			c.mu.RLock()
			conn := c.conn
			c.mu.RUnlock()
			if conn == nil {
				return
			}
			frame := realtimeInputMessage{RealtimeInput: realtimeInput{MediaChunks: []mediaChunk{{
				MimeType: "audio/pcm;rate=16000",
				Data:     base64.StdEncoding.EncodeToString(pcm),
			}}}}
			if err := conn.WriteJSON(frame); err != nil {
				log.Printf("model: error sending audio: %v", err)
				return
			}
		}
	}
}
