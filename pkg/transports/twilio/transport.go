package twilio

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/hanifadr/callward/pkg/adapters/stt"
	"github.com/hanifadr/callward/pkg/adapters/tts"
	"github.com/hanifadr/callward/pkg/errorsx"
	"github.com/hanifadr/callward/pkg/transports"
	"github.com/twilio/twilio-go"
	twilioclient "github.com/twilio/twilio-go/client"
	api "github.com/twilio/twilio-go/rest/api/v2010"
)

type Config struct {
	ServerAddr         string   `mapstructure:"server_addr"`
	PublicURL          string   `mapstructure:"public_url"`
	AuthToken          string   `mapstructure:"auth_token"`
	AccountSID         string   `mapstructure:"account_sid"`
	VoicePath          string   `mapstructure:"voice_path"`
	WebsocketPath      string   `mapstructure:"ws_path"`
	StatusCallbackPath string   `mapstructure:"status_callback_path"`
	VoiceGreeting      string   `mapstructure:"voice_greeting"`
	AllowAnyOrigin     bool     `mapstructure:"allow_any_origin"`
	AllowedOrigins     []string `mapstructure:"allowed_origins"`
}

func (c Config) withDefaults() Config {
	if c.ServerAddr == "" {
		c.ServerAddr = ":8080"
	}
	if c.VoicePath == "" {
		c.VoicePath = "/voice"
	}
	if c.WebsocketPath == "" {
		c.WebsocketPath = "/ws"
	}
	if c.StatusCallbackPath == "" {
		c.StatusCallbackPath = "/status"
	}
	if !c.AllowAnyOrigin && len(c.AllowedOrigins) == 0 {
		c.AllowAnyOrigin = true
	}
	return c
}

// STTFactory builds a recognizer for one call's media stream.
type STTFactory func(cfg stt.Config) stt.StreamingSTT

// TTSFactory builds a synthesizer for one call's outbound audio.
type TTSFactory func(cfg tts.Config) tts.StreamingTTS

// Transport bridges Twilio programmable voice to turn events. Inbound
// media is fed to a per-call recognizer; final transcripts become
// caller_turn events. Screening replies are synthesized and written
// back to the media stream.
type Transport struct {
	cfg      Config
	server   *http.Server
	upgrader websocket.Upgrader
	recvCh   chan transports.TurnEvent
	log      *slog.Logger

	sttFactory STTFactory
	ttsFactory TTSFactory

	updateClient callUpdater

	mu       sync.Mutex
	sessions map[string]*session

	draining atomic.Bool
}

type callUpdater interface {
	UpdateCall(sid string, params *api.UpdateCallParams) (*api.ApiV2010Call, error)
}

func New(cfg Config, sttFactory STTFactory, ttsFactory TTSFactory, log *slog.Logger) *Transport {
	cfg = cfg.withDefaults()
	if log == nil {
		log = slog.Default()
	}
	t := &Transport{
		cfg: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		recvCh:     make(chan transports.TurnEvent, 512),
		log:        log.With(slog.String("component", "twilio_transport")),
		sttFactory: sttFactory,
		ttsFactory: ttsFactory,
		sessions:   make(map[string]*session),
	}
	t.upgrader.CheckOrigin = t.checkOrigin
	return t
}

func (t *Transport) Name() string { return "twilio" }

func (t *Transport) Recv() <-chan transports.TurnEvent { return t.recvCh }

func (t *Transport) ReadyFields() map[string]any {
	return map[string]any{
		"webhook_url":         t.voiceWebhookURL(),
		"status_callback_url": t.statusCallbackURL(),
	}
}

func (t *Transport) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	mux := http.NewServeMux()
	mux.HandleFunc(t.cfg.VoicePath, t.handleVoice)
	mux.Handle(t.cfg.WebsocketPath, t)
	mux.HandleFunc(t.cfg.StatusCallbackPath, t.handleStatusCallback)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	t.server = &http.Server{
		Addr:              t.cfg.ServerAddr,
		ReadHeaderTimeout: 5 * time.Second,
		Handler:           mux,
	}
	go func() {
		<-ctx.Done()
		_ = t.server.Close()
	}()
	go func() {
		if err := t.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			t.log.Error("twilio_transport_server_error", "error", err.Error())
		}
	}()
	return nil
}

func (t *Transport) Stop() error {
	t.draining.Store(true)
	if t.server != nil {
		_ = t.server.Close()
	}
	t.mu.Lock()
	for _, sess := range t.sessions {
		_ = sess.close()
	}
	t.sessions = make(map[string]*session)
	t.mu.Unlock()
	close(t.recvCh)
	return nil
}

func (t *Transport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if t.draining.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	conn, err := t.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	var callID string
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			break
		}
		var evt TwilioEvent
		if err := json.Unmarshal(msg, &evt); err != nil {
			continue
		}
		switch evt.Event {
		case "start":
			if evt.Start == nil {
				continue
			}
			callID = evt.Start.CallSID
			t.startSession(callID, evt.Start.StreamID, evt.Start.From, conn)
		case "media":
			if evt.Media == nil || callID == "" {
				continue
			}
			payload, err := base64.StdEncoding.DecodeString(evt.Media.Payload)
			if err != nil {
				continue
			}
			if sess := t.session(callID); sess != nil && sess.stt != nil {
				if err := sess.stt.SendAudio(payload); err != nil {
					t.log.Warn("stt_send_failed",
						"call_id", callID,
						"reason_code", string(errorsx.Reason(err)))
				}
			}
		case "stop":
			reason := ""
			if evt.Stop != nil {
				reason = normalizeCallEndReason(evt.Stop.Reason)
			}
			if reason == "" {
				reason = "completed"
			}
			t.endCall(callID, reason)
			return
		}
	}
	if callID != "" {
		t.endCall(callID, normalizeCallEndReason("transport_closed"))
	}
}

// Send synthesizes the response text for the call's media stream, or
// writes pre-rendered audio when supplied.
func (t *Transport) Send(r transports.Response) error {
	sess := t.session(r.CallID)
	if sess == nil {
		return nil
	}
	if len(r.Audio) > 0 {
		return sess.writeMedia(r.Audio)
	}
	if sess.tts == nil {
		return nil
	}
	if err := sess.tts.SendText(r.Text); err != nil {
		return errorsx.Wrap(err, errorsx.ReasonTransportSend)
	}
	return nil
}

// Hangup ends an active call by updating it with hangup TwiML.
func (t *Transport) Hangup(ctx context.Context, callID string) error {
	_ = ctx
	if strings.TrimSpace(callID) == "" {
		return errorsx.Wrap(errors.New("call id required"), errorsx.ReasonBadInput)
	}
	if t.cfg.AccountSID == "" || t.cfg.AuthToken == "" {
		return errorsx.Wrap(errors.New("missing twilio credentials"), errorsx.ReasonHangupFailed)
	}
	updater := t.updateClient
	if updater == nil {
		rest := twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: t.cfg.AccountSID,
			Password: t.cfg.AuthToken,
		})
		updater = rest.Api
	}
	params := &api.UpdateCallParams{}
	params.SetTwiml(`<Response><Hangup/></Response>`)
	if _, err := updater.UpdateCall(callID, params); err != nil {
		return errorsx.Wrap(err, errorsx.ReasonHangupFailed)
	}
	return nil
}

func (t *Transport) handleVoice(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if t.cfg.AuthToken != "" && !t.validateTwilioRequest(r) {
		t.log.Warn("twilio_invalid_signature",
			"reason_code", string(errorsx.ReasonTransportInvalidSignature))
		w.WriteHeader(http.StatusForbidden)
		return
	}
	wsURL := t.websocketURL(r)
	greeting := strings.TrimSpace(t.cfg.VoiceGreeting)
	var twiml string
	if greeting != "" {
		twiml = `<Response><Say>` + xmlEscape(greeting) + `</Say><Connect><Stream url="` + wsURL + `"/></Connect></Response>`
	} else {
		twiml = `<Response><Connect><Stream url="` + wsURL + `"/></Connect></Response>`
	}
	w.Header().Set("Content-Type", "text/xml")
	_, _ = w.Write([]byte(twiml))
}

func (t *Transport) handleStatusCallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if t.cfg.AuthToken != "" && !t.validateTwilioRequest(r) {
		t.log.Warn("twilio_status_invalid_signature",
			"reason_code", string(errorsx.ReasonTransportInvalidSignature))
		w.WriteHeader(http.StatusForbidden)
		return
	}
	if err := r.ParseForm(); err != nil {
		w.WriteHeader(http.StatusOK)
		return
	}
	callID := r.FormValue("CallSid")
	reason := normalizeCallEndReason(r.FormValue("CallStatus"))
	if reason == "" || callID == "" {
		w.WriteHeader(http.StatusOK)
		return
	}
	t.endCall(callID, reason)
	w.WriteHeader(http.StatusOK)
}

func (t *Transport) startSession(callID, streamID, from string, conn *websocket.Conn) {
	traceID := uuid.NewString()
	sess := &session{
		conn:     conn,
		streamID: streamID,
		sendCh:   make(chan []byte, 256),
	}

	if t.sttFactory != nil {
		sess.stt = t.sttFactory(stt.Config{
			StreamID:   streamID,
			CallID:     callID,
			TraceID:    traceID,
			SampleRate: 8000,
		})
		if err := sess.stt.Start(context.Background()); err != nil {
			t.log.Error("stt_start_failed",
				"call_id", callID,
				"reason_code", string(errorsx.Reason(err)))
			sess.stt = nil
		}
	}
	if t.ttsFactory != nil {
		sess.tts = t.ttsFactory(tts.Config{
			StreamID:   streamID,
			CallID:     callID,
			SampleRate: 8000,
			Channels:   1,
		})
		if err := sess.tts.Start(context.Background()); err != nil {
			t.log.Error("tts_start_failed",
				"call_id", callID,
				"reason_code", string(errorsx.Reason(err)))
			sess.tts = nil
		}
	}

	t.mu.Lock()
	old := t.sessions[callID]
	t.sessions[callID] = sess
	t.mu.Unlock()
	if old != nil {
		_ = old.close()
	}

	go sess.loop()
	if sess.stt != nil {
		go t.pumpTranscripts(callID, from, sess)
	}
	if sess.tts != nil {
		go t.pumpAudio(sess)
	}

	t.emit(transports.TurnEvent{
		Kind:        transports.EventCallStart,
		CallID:      callID,
		CallerPhone: from,
		Time:        time.Now(),
		Meta:        map[string]string{"stream_id": streamID, "trace_id": traceID},
	})
}

// pumpTranscripts converts final recognizer output into caller turns.
func (t *Transport) pumpTranscripts(callID, from string, sess *session) {
	for tr := range sess.stt.Results() {
		if !tr.Final || strings.TrimSpace(tr.Text) == "" {
			continue
		}
		t.emit(transports.TurnEvent{
			Kind:        transports.EventCallerTurn,
			CallID:      callID,
			CallerPhone: from,
			Text:        tr.Text,
			Confidence:  tr.Confidence,
			Time:        time.Now(),
		})
	}
}

// pumpAudio forwards synthesized audio chunks to the media stream.
func (t *Transport) pumpAudio(sess *session) {
	for chunk := range sess.tts.Results() {
		if len(chunk.Audio) == 0 {
			continue
		}
		_ = sess.writeMedia(chunk.Audio)
	}
}

func (t *Transport) endCall(callID, reason string) {
	if callID == "" {
		return
	}
	t.mu.Lock()
	sess := t.sessions[callID]
	delete(t.sessions, callID)
	t.mu.Unlock()
	if sess == nil {
		return
	}
	_ = sess.close()
	t.emit(transports.TurnEvent{
		Kind:      transports.EventCallEnd,
		CallID:    callID,
		EndReason: reason,
		Time:      time.Now(),
	})
}

func (t *Transport) session(callID string) *session {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sessions[callID]
}

func (t *Transport) emit(ev transports.TurnEvent) {
	if t.draining.Load() {
		return
	}
	select {
	case t.recvCh <- ev:
	default:
		t.log.Warn("recv_channel_full", "call_id", ev.CallID, "kind", string(ev.Kind))
	}
}

func (t *Transport) websocketURL(r *http.Request) string {
	if t.cfg.PublicURL != "" {
		return "wss://" + normalizePublicURL(t.cfg.PublicURL) + t.cfg.WebsocketPath
	}
	host := r.Host
	if host == "" {
		host = strings.TrimPrefix(t.cfg.ServerAddr, ":")
	}
	return "wss://" + host + t.cfg.WebsocketPath
}

func (t *Transport) voiceWebhookURL() string {
	if t.cfg.PublicURL != "" {
		return "https://" + normalizePublicURL(t.cfg.PublicURL) + t.cfg.VoicePath
	}
	addr := t.cfg.ServerAddr
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	return "http://" + addr + t.cfg.VoicePath
}

func (t *Transport) statusCallbackURL() string {
	if t.cfg.PublicURL != "" {
		return "https://" + normalizePublicURL(t.cfg.PublicURL) + t.cfg.StatusCallbackPath
	}
	addr := t.cfg.ServerAddr
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	return "http://" + addr + t.cfg.StatusCallbackPath
}

func (t *Transport) validateTwilioRequest(r *http.Request) bool {
	signature := r.Header.Get("X-Twilio-Signature")
	if signature == "" || t.cfg.AuthToken == "" {
		return false
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return false
	}
	_ = r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(body))

	validator := twilioclient.NewRequestValidator(t.cfg.AuthToken)
	return validator.ValidateBody(t.requestURL(r), body, signature)
}

func (t *Transport) requestURL(r *http.Request) string {
	if t.cfg.PublicURL != "" {
		base := strings.TrimRight(t.cfg.PublicURL, "/")
		return base + r.URL.RequestURI()
	}
	scheme := r.URL.Scheme
	if scheme == "" {
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		} else {
			scheme = "https"
		}
	}
	host := r.Host
	if host == "" {
		host = strings.TrimPrefix(t.cfg.ServerAddr, ":")
	}
	return scheme + "://" + host + r.URL.RequestURI()
}

func (t *Transport) checkOrigin(r *http.Request) bool {
	if t.cfg.AllowAnyOrigin {
		return true
	}
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	origin = strings.TrimRight(origin, "/")
	originHost := strings.TrimPrefix(origin, "https://")
	originHost = strings.TrimPrefix(originHost, "http://")
	for _, allowed := range t.cfg.AllowedOrigins {
		a := strings.TrimRight(strings.TrimSpace(allowed), "/")
		if a == "" {
			continue
		}
		if strings.HasPrefix(a, "http://") || strings.HasPrefix(a, "https://") {
			if strings.EqualFold(a, origin) {
				return true
			}
			continue
		}
		if strings.EqualFold(a, originHost) {
			return true
		}
	}
	return false
}

func xmlEscape(in string) string {
	replacer := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		"\"", "&quot;",
		"'", "&apos;",
	)
	return replacer.Replace(in)
}

func normalizeCallEndReason(raw string) string {
	r := strings.ToLower(strings.TrimSpace(raw))
	if r == "" {
		return ""
	}
	switch r {
	case "queued", "ringing", "in-progress", "inprogress":
		return ""
	case "completed", "call_ended", "call-ended", "hangup":
		return "completed"
	case "busy":
		return "busy"
	case "no_answer", "noanswer", "no-answer":
		return "no_answer"
	case "failed", "error", "canceled", "cancelled", "transport_closed":
		return "failed"
	default:
		return "unknown"
	}
}

type session struct {
	conn     *websocket.Conn
	streamID string
	sendCh   chan []byte
	stt      stt.StreamingSTT
	tts      tts.StreamingTTS
	closed   atomic.Bool
}

func (s *session) writeMedia(audio []byte) error {
	msg := map[string]any{
		"event":     "media",
		"streamSid": s.streamID,
		"media": map[string]any{
			"payload": base64.StdEncoding.EncodeToString(audio),
		},
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if s.closed.Load() {
		return nil
	}
	select {
	case s.sendCh <- b:
	default:
	}
	return nil
}

func (s *session) loop() {
	for msg := range s.sendCh {
		_ = s.conn.WriteMessage(websocket.TextMessage, msg)
	}
}

func (s *session) close() error {
	if s.closed.CompareAndSwap(false, true) {
		close(s.sendCh)
		if s.stt != nil {
			_ = s.stt.Close()
		}
		if s.tts != nil {
			_ = s.tts.Close()
		}
	}
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

type TwilioStart struct {
	CallSID  string `json:"callSid"`
	StreamID string `json:"streamSid"`
	From     string `json:"from"`
}

type TwilioMedia struct {
	Payload string `json:"payload"`
}

type TwilioStop struct {
	Reason string `json:"reason"`
}

type TwilioEvent struct {
	Event string       `json:"event"`
	Start *TwilioStart `json:"start,omitempty"`
	Media *TwilioMedia `json:"media,omitempty"`
	Stop  *TwilioStop  `json:"stop,omitempty"`
}

func normalizePublicURL(v string) string {
	v = strings.TrimPrefix(v, "https://")
	v = strings.TrimPrefix(v, "http://")
	return strings.TrimRight(v, "/")
}

var _ transports.Transport = (*Transport)(nil)
var _ transports.Hanguper = (*Transport)(nil)
var _ transports.ReadyReporter = (*Transport)(nil)
