// Copyright 2024-2026 Aiku AI

package relay

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/aiku/affiliate-relay/pkg/affiliate"
	"github.com/aiku/affiliate-relay/pkg/metrics"
	"github.com/aiku/affiliate-relay/pkg/policy"
	"github.com/aiku/affiliate-relay/pkg/rewrite"
)

type sentMessage struct {
	ChannelID  string
	Text       string
	Attachment any
}

type fakeTransport struct {
	mu        sync.Mutex
	inbound   []Message
	sent      []sentMessage
	sources   []string
	sendErr   error
	listenErr error
}

func (f *fakeTransport) Listen(ctx context.Context, sources []string, handle Handler) error {
	f.mu.Lock()
	f.sources = sources
	f.mu.Unlock()
	for _, m := range f.inbound {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		handle(ctx, m)
	}
	return f.listenErr
}

func (f *fakeTransport) SendText(_ context.Context, channelID, text string) error {
	return f.record(sentMessage{ChannelID: channelID, Text: text})
}

func (f *fakeTransport) SendMedia(_ context.Context, channelID string, attachment any, caption string) error {
	return f.record(sentMessage{ChannelID: channelID, Text: caption, Attachment: attachment})
}

func (f *fakeTransport) record(m sentMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, m)
	return nil
}

func (f *fakeTransport) Sent() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

type identityExpander struct{}

func (identityExpander) Expand(_ context.Context, u string) string { return u }

type mapConverter struct {
	mu      sync.Mutex
	results map[string]affiliate.Result
	calls   []string
}

func (c *mapConverter) GenerateTrackedLink(_ context.Context, originURL string, _ ...string) affiliate.Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, originURL)
	if r, ok := c.results[originURL]; ok {
		return r
	}
	return affiliate.Result{Reason: affiliate.ReasonNotFound, Err: affiliate.ErrNotFound}
}

func (c *mapConverter) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

type recordingSink struct {
	metrics.NoopSink
	mu         sync.Mutex
	reasons    []string
	outcomes   []string
	dispatches []string
}

func (s *recordingSink) MessageEvaluated(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reasons = append(s.reasons, reason)
}

func (s *recordingSink) LinkProcessed(outcome string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes = append(s.outcomes, outcome)
}

func (s *recordingSink) DispatchCompleted(kind string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		kind += ":error"
	}
	s.dispatches = append(s.dispatches, kind)
}

type fixture struct {
	relay     *Relay
	transport *fakeTransport
	converter *mapConverter
	sink      *recordingSink
}

func newFixture(t *testing.T, allow, block []string, subs []rewrite.Substitution) *fixture {
	t.Helper()
	words, err := rewrite.NewWordReplacer(subs)
	if err != nil {
		t.Fatalf("NewWordReplacer: %v", err)
	}
	f := &fixture{
		transport: &fakeTransport{},
		converter: &mapConverter{results: map[string]affiliate.Result{}},
		sink:      &recordingSink{},
	}
	rw := rewrite.New(identityExpander{}, f.converter, words)
	f.relay = New(f.transport, policy.New(allow, block), rw,
		Options{Sources: []string{"src-1", "src-2"}, Destination: "dest"},
		f.sink, zerolog.Nop())
	return f
}

func tracked(url string) affiliate.Result {
	return affiliate.Result{TrackedURL: url}
}

func TestHandle_ConvertsAndSubstitutes(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil, nil, []rewrite.Substitution{{Original: "#cupom", Replacement: "#oferta"}})
	f.converter.results["https://shopee.com.br/product-1"] = tracked("https://s.shopee.com.br/TRACKED1")

	report := f.relay.Handle(context.Background(), Message{
		ID:        "m1",
		ChannelID: "src-1",
		Text:      "Confira #CUPOM https://shopee.com.br/product-1",
	})

	if !report.Dispatched || report.Err != nil {
		t.Fatalf("report: dispatched=%v err=%v", report.Dispatched, report.Err)
	}
	if report.RelayID == "" {
		t.Error("RelayID is empty")
	}
	sent := f.transport.Sent()
	if len(sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(sent))
	}
	want := "Confira #oferta https://s.shopee.com.br/TRACKED1"
	if sent[0].Text != want || sent[0].ChannelID != "dest" {
		t.Errorf("sent %+v, want text %q to dest", sent[0], want)
	}
	if report.Kind != metrics.DispatchText {
		t.Errorf("Kind: got %q", report.Kind)
	}
	if got := f.sink.outcomes; len(got) != 1 || got[0] != "converted" {
		t.Errorf("link outcomes: %v", got)
	}
}

func TestHandle_NoLinkMakesNoCalls(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil, nil, nil)

	report := f.relay.Handle(context.Background(), Message{ChannelID: "src-1", Text: "bom dia grupo"})

	if report.Decision.Reason != policy.ReasonNoLink || report.Dispatched {
		t.Errorf("report: %+v", report)
	}
	if n := len(f.transport.Sent()); n != 0 {
		t.Errorf("sent %d messages, want 0", n)
	}
	if n := len(f.converter.Calls()); n != 0 {
		t.Errorf("converter called %d times, want 0", n)
	}
	if got := f.sink.reasons; len(got) != 1 || got[0] != "no_link" {
		t.Errorf("reasons: %v", got)
	}
}

func TestHandle_FilteredMessages(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		allow  []string
		block  []string
		text   string
		reason policy.Reason
	}{
		{"keyword miss", []string{"cupom"}, nil, "oferta https://shopee.com.br/x", policy.ReasonKeywordMiss},
		{"blocked", nil, []string{"esgotado"}, "Esgotado https://shopee.com.br/x", policy.ReasonBlocked},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t, tt.allow, tt.block, nil)
			report := f.relay.Handle(context.Background(), Message{Text: tt.text})
			if report.Decision.Reason != tt.reason {
				t.Errorf("reason: got %q, want %q", report.Decision.Reason, tt.reason)
			}
			if len(f.transport.Sent()) != 0 || len(f.converter.Calls()) != 0 {
				t.Error("filtered message caused outbound calls")
			}
		})
	}
}

func TestHandle_ConversionFailureStillDispatches(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil, nil, nil)
	f.converter.results["https://shopee.com.br/x"] = affiliate.Result{
		Reason: affiliate.ReasonTransport,
		Err:    affiliate.ErrTransport,
	}

	text := "veja https://shopee.com.br/x"
	report := f.relay.Handle(context.Background(), Message{Text: text})

	sent := f.transport.Sent()
	if len(sent) != 1 || sent[0].Text != text {
		t.Fatalf("sent %+v, want original text", sent)
	}
	if got := f.sink.outcomes; len(got) != 1 || got[0] != "failed_transport" {
		t.Errorf("link outcomes: %v", got)
	}
	if !report.Dispatched {
		t.Error("message was not dispatched")
	}
}

func TestHandle_MediaMessage(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil, nil, nil)
	f.converter.results["https://shopee.com.br/x"] = tracked("https://s.shopee.com.br/T")
	attachment := []string{"file-1"}

	report := f.relay.Handle(context.Background(), Message{
		Text:       "foto https://shopee.com.br/x",
		Attachment: attachment,
	})

	sent := f.transport.Sent()
	if len(sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(sent))
	}
	ids, ok := sent[0].Attachment.([]string)
	if !ok || len(ids) != 1 || ids[0] != "file-1" {
		t.Errorf("attachment: got %#v", sent[0].Attachment)
	}
	if sent[0].Text != "foto https://s.shopee.com.br/T" {
		t.Errorf("caption: got %q", sent[0].Text)
	}
	if report.Kind != metrics.DispatchMedia {
		t.Errorf("Kind: got %q, want media", report.Kind)
	}
}

func TestHandle_DispatchError(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil, nil, nil)
	f.transport.sendErr = errors.New("connection reset")

	report := f.relay.Handle(context.Background(), Message{Text: "https://shopee.com.br/x"})

	if report.Dispatched {
		t.Error("Dispatched should be false")
	}
	if !errors.Is(report.Err, ErrDispatch) {
		t.Errorf("Err: got %v, want ErrDispatch", report.Err)
	}
	if got := f.sink.dispatches; len(got) != 1 || got[0] != "text:error" {
		t.Errorf("dispatches: %v", got)
	}
}

func TestRun_HandlesMessagesInOrder(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil, nil, nil)
	f.converter.results["https://shopee.com.br/a"] = tracked("https://s.shopee.com.br/A")
	f.converter.results["https://shopee.com.br/b"] = tracked("https://s.shopee.com.br/B")
	f.transport.inbound = []Message{
		{ID: "1", Text: "https://shopee.com.br/a"},
		{ID: "2", Text: "sem link"},
		{ID: "3", Text: "https://shopee.com.br/b"},
	}

	if err := f.relay.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	sent := f.transport.Sent()
	if len(sent) != 2 || sent[0].Text != "https://s.shopee.com.br/A" || sent[1].Text != "https://s.shopee.com.br/B" {
		t.Errorf("sent: %+v", sent)
	}
	if got := f.transport.sources; len(got) != 2 || got[0] != "src-1" {
		t.Errorf("sources: %v", got)
	}
}

func TestRun_ListenError(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil, nil, nil)
	f.transport.listenErr = errors.New("unauthorized")

	if err := f.relay.Run(context.Background()); err == nil {
		t.Error("expected error")
	}
}

func TestRun_CanceledIsClean(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil, nil, nil)
	f.transport.inbound = []Message{{Text: "x"}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := f.relay.Run(ctx); err != nil {
		t.Errorf("Run: got %v, want nil", err)
	}
}

func TestPreview_DoesNotDispatch(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil, nil, []rewrite.Substitution{{Original: "a", Replacement: "b"}})
	f.converter.results["https://shopee.com.br/x"] = tracked("https://s.shopee.com.br/T")

	report := f.relay.Preview(context.Background(), "a https://shopee.com.br/x")

	if report.Text != "b https://s.shopee.com.br/T" {
		t.Errorf("Text: got %q", report.Text)
	}
	if len(f.transport.Sent()) != 0 {
		t.Error("Preview dispatched a message")
	}
	if len(f.sink.reasons) != 0 {
		t.Error("Preview recorded metrics")
	}
}
