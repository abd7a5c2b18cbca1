package dispatch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prukaya/finbuddy/internal/session"
)

type sentMessage struct {
	ChatID  int64
	Text    string
	Buttons [][]Button
}

type recordingSender struct {
	mu        sync.Mutex
	sent      []sentMessage
	typing    int
	callbacks []string
	sendErr   error
}

func (s *recordingSender) Send(_ context.Context, chatID int64, text string, buttons [][]Button) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sentMessage{ChatID: chatID, Text: text, Buttons: buttons})
	return s.sendErr
}

func (s *recordingSender) Typing(context.Context, int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.typing++
	return nil
}

func (s *recordingSender) typingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.typing
}

func (s *recordingSender) AnswerCallback(_ context.Context, id, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callbacks = append(s.callbacks, id)
	return nil
}

func (s *recordingSender) texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.sent))
	for _, m := range s.sent {
		out = append(out, m.Text)
	}
	return out
}

type call struct {
	Query   string
	History []session.Turn
}

type scriptedAnswerer struct {
	mu      sync.Mutex
	calls   []call
	reply   string
	err     error
	release chan struct{}
	started chan struct{}
}

func (a *scriptedAnswerer) Answer(ctx context.Context, query string, history []session.Turn) (string, error) {
	a.mu.Lock()
	a.calls = append(a.calls, call{Query: query, History: history})
	a.mu.Unlock()

	if a.started != nil {
		a.started <- struct{}{}
	}
	if a.release != nil {
		select {
		case <-a.release:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if a.err != nil {
		return "", a.err
	}
	if a.reply != "" {
		return a.reply, nil
	}
	return "echo: " + query, nil
}

func (a *scriptedAnswerer) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.calls)
}

type termChecker struct{ term string }

func (c termChecker) IsFlagged(text string) bool {
	return strings.Contains(strings.ToLower(text), c.term)
}

type harness struct {
	dispatcher *Dispatcher
	sessions   *session.Manager
	sender     *recordingSender
	answerer   *scriptedAnswerer
}

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stepClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newHarness(t *testing.T, answerer *scriptedAnswerer) *harness {
	t.Helper()
	return newClockedHarness(t, answerer, session.RealClock)
}

func newClockedHarness(t *testing.T, answerer *scriptedAnswerer, clock session.Clock) *harness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sessions := session.NewManager(session.Options{Logger: logger, Clock: clock})
	sender := &recordingSender{}
	d := New(Config{
		Sessions:      sessions,
		Answerer:      answerer,
		Safety:        termChecker{term: "badword"},
		Sender:        sender,
		Logger:        logger,
		AnswerTimeout: time.Second,
		Workers:       4,
	})
	return &harness{dispatcher: d, sessions: sessions, sender: sender, answerer: answerer}
}

func TestHandle_SuccessfulExchangeRecordsHistory(t *testing.T) {
	h := newHarness(t, &scriptedAnswerer{reply: "Start with an emergency fund."})
	ctx := context.Background()

	h.dispatcher.Handle(ctx, Message{UserID: 1, Username: "alice", Text: "How do I start saving?"})

	assert.Equal(t, []string{"Start with an emergency fund."}, h.sender.texts())
	assert.Equal(t, 1, h.sender.typing)

	sess, ok := h.sessions.Get(1)
	require.True(t, ok)
	assert.False(t, sess.Processing)
	assert.Equal(t, []session.Turn{
		{Role: session.RoleUser, Content: "How do I start saving?"},
		{Role: session.RoleAssistant, Content: "Start with an emergency fund."},
	}, sess.History)
}

func TestHandle_HistoryIsReplayedInOrder(t *testing.T) {
	answerer := &scriptedAnswerer{}
	h := newHarness(t, answerer)
	ctx := context.Background()

	h.dispatcher.Handle(ctx, Message{UserID: 2, Text: "first"})
	h.dispatcher.Handle(ctx, Message{UserID: 2, Text: "second"})

	require.Equal(t, 2, answerer.callCount())
	assert.Empty(t, answerer.calls[0].History)
	assert.Equal(t, []session.Turn{
		{Role: session.RoleUser, Content: "first"},
		{Role: session.RoleAssistant, Content: "echo: first"},
	}, answerer.calls[1].History)
}

func TestHandle_RejectsConcurrentMessage(t *testing.T) {
	answerer := &scriptedAnswerer{release: make(chan struct{}), started: make(chan struct{}, 1)}
	h := newHarness(t, answerer)
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		h.dispatcher.Handle(ctx, Message{UserID: 3, Text: "slow question"})
		close(done)
	}()
	<-answerer.started

	h.dispatcher.Handle(ctx, Message{UserID: 3, Text: "impatient follow-up"})
	assert.Equal(t, []string{WaitNotice}, h.sender.texts())
	assert.Equal(t, 1, answerer.callCount())

	close(answerer.release)
	<-done

	sess, _ := h.sessions.Get(3)
	assert.False(t, sess.Processing)
	assert.Len(t, sess.History, 2)
	assert.Equal(t, "slow question", sess.History[0].Content)
}

func TestHandle_FlaggedContentShortCircuits(t *testing.T) {
	answerer := &scriptedAnswerer{}
	h := newHarness(t, answerer)

	h.dispatcher.Handle(context.Background(), Message{UserID: 4, Text: "some BADWORD here"})

	assert.Equal(t, []string{InappropriateText}, h.sender.texts())
	assert.Zero(t, answerer.callCount())

	sess, ok := h.sessions.Get(4)
	require.True(t, ok)
	assert.False(t, sess.Processing)
	assert.Empty(t, sess.History)
}

func TestHandle_AnswerFailureIsGeneric(t *testing.T) {
	h := newHarness(t, &scriptedAnswerer{err: errors.New("dial tcp: connection refused")})

	h.dispatcher.Handle(context.Background(), Message{UserID: 5, Text: "hello?"})

	assert.Equal(t, []string{UnavailableText}, h.sender.texts())
	sess, _ := h.sessions.Get(5)
	assert.False(t, sess.Processing)
	assert.Empty(t, sess.History)

	// the gate is open again so a retry goes through
	_, ok := h.sessions.TryBeginProcessing(5)
	assert.True(t, ok)
}

func TestHandle_AnswerTimeout(t *testing.T) {
	answerer := &scriptedAnswerer{release: make(chan struct{})}
	h := newHarness(t, answerer)
	h.dispatcher.answerTimeout = 20 * time.Millisecond

	h.dispatcher.Handle(context.Background(), Message{UserID: 6, Text: "never answered"})

	assert.Equal(t, []string{UnavailableText}, h.sender.texts())
	sess, _ := h.sessions.Get(6)
	assert.False(t, sess.Processing)
}

func TestHandle_SendFailureDoesNotChangeState(t *testing.T) {
	h := newHarness(t, &scriptedAnswerer{reply: "ok"})
	h.sender.sendErr = errors.New("telegram down")

	h.dispatcher.Handle(context.Background(), Message{UserID: 7, Text: "hi"})

	sess, _ := h.sessions.Get(7)
	assert.False(t, sess.Processing)
	assert.Len(t, sess.History, 2)
}

func TestHandle_CommandsBypassGate(t *testing.T) {
	answerer := &scriptedAnswerer{}
	h := newHarness(t, answerer)
	var got []Message
	h.dispatcher.HandleCommand("listallpolicies", func(_ context.Context, msg Message) []Reply {
		got = append(got, msg)
		return []Reply{{Text: "Select a category:", Buttons: [][]Button{{{Text: "Life", Data: "category_1"}}}}}
	})
	ctx := context.Background()

	h.sessions.GetOrCreate(8, "kim")
	_, ok := h.sessions.TryBeginProcessing(8)
	require.True(t, ok)

	h.dispatcher.Handle(ctx, Message{UserID: 8, Command: "ListAllPolicies"})

	require.Len(t, got, 1)
	assert.Equal(t, []string{"Select a category:"}, h.sender.texts())
	assert.Zero(t, answerer.callCount())
}

func TestHandle_UnknownAndMalformedCommands(t *testing.T) {
	answerer := &scriptedAnswerer{}
	h := newHarness(t, answerer)
	ctx := context.Background()

	h.dispatcher.Handle(ctx, Message{UserID: 9, Command: "nope"})
	h.dispatcher.Handle(ctx, Message{UserID: 9, Text: "/not a real command"})
	h.dispatcher.Handle(ctx, Message{UserID: 9, Text: "   "})

	assert.Equal(t, []string{UnknownCommand, UnknownCommand}, h.sender.texts())
	assert.Zero(t, answerer.callCount())
}

func TestHandle_CallbackLongestPrefix(t *testing.T) {
	h := newHarness(t, &scriptedAnswerer{})
	var hit string
	h.dispatcher.HandleCallback("cat_", func(context.Context, Message) []Reply { hit = "cat"; return nil })
	h.dispatcher.HandleCallback("category_", func(context.Context, Message) []Reply { hit = "category"; return nil })
	h.dispatcher.HandleCallback("financial_", func(context.Context, Message) []Reply { hit = "financial"; return nil })
	h.dispatcher.HandleCallback("financial_bank_", func(context.Context, Message) []Reply { hit = "bank"; return nil })
	ctx := context.Background()

	h.dispatcher.Handle(ctx, Message{UserID: 10, CallbackID: "cb1", CallbackData: "category_3"})
	assert.Equal(t, "category", hit)

	h.dispatcher.Handle(ctx, Message{UserID: 10, CallbackID: "cb2", CallbackData: "financial_bank_1_2"})
	assert.Equal(t, "bank", hit)

	h.dispatcher.Handle(ctx, Message{UserID: 10, CallbackID: "cb3", CallbackData: "unknown"})
	assert.Equal(t, []string{"cb1", "cb2", "cb3"}, h.sender.callbacks)
}

func TestBuiltinCommands(t *testing.T) {
	h := newHarness(t, &scriptedAnswerer{})
	ctx := context.Background()

	h.dispatcher.Handle(ctx, Message{UserID: 11, Username: "lee", Command: "start"})
	first, ok := h.sessions.Get(11)
	require.True(t, ok)
	assert.Contains(t, h.sender.texts()[0], "lee")

	h.dispatcher.Handle(ctx, Message{UserID: 11, Text: "hi"})
	h.dispatcher.Handle(ctx, Message{UserID: 11, Command: "reset"})
	_, ok = h.sessions.Get(11)
	assert.False(t, ok)

	h.dispatcher.Handle(ctx, Message{UserID: 11, Text: "hi again"})
	second, _ := h.sessions.Get(11)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Len(t, second.History, 2)
}

func TestResetWhileProcessing(t *testing.T) {
	h := newHarness(t, &scriptedAnswerer{})
	ctx := context.Background()

	h.sessions.GetOrCreate(12, "mo")
	_, ok := h.sessions.TryBeginProcessing(12)
	require.True(t, ok)

	h.dispatcher.Handle(ctx, Message{UserID: 12, Command: "reset"})
	assert.Equal(t, []string{WaitNotice}, h.sender.texts())
	_, ok = h.sessions.Get(12)
	assert.True(t, ok)
}

func TestRun_ProcessesStreamConcurrently(t *testing.T) {
	answerer := &scriptedAnswerer{}
	h := newHarness(t, answerer)

	in := make(chan Message)
	errCh := make(chan error, 1)
	go func() { errCh <- h.dispatcher.Run(context.Background(), in) }()

	for user := int64(100); user < 110; user++ {
		in <- Message{UserID: user, Text: "question"}
	}
	close(in)

	require.NoError(t, <-errCh)
	assert.Equal(t, 10, answerer.callCount())
	assert.Equal(t, 10, h.sessions.Stats().Total)
	assert.Zero(t, h.sessions.Stats().Processing)
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	h := newHarness(t, &scriptedAnswerer{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := h.dispatcher.Run(ctx, make(chan Message))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHandle_ReplacedSessionStartsClean(t *testing.T) {
	clock := &stepClock{now: time.Date(2024, 11, 1, 9, 0, 0, 0, time.UTC)}
	answerer := &scriptedAnswerer{release: make(chan struct{}), started: make(chan struct{}, 1)}
	h := newClockedHarness(t, answerer, clock)
	h.dispatcher.answerTimeout = 0
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		h.dispatcher.Handle(ctx, Message{UserID: 30, Text: "old question"})
		close(done)
	}()
	<-answerer.started
	old, _ := h.sessions.Get(30)

	clock.Advance(3 * time.Minute)
	h.dispatcher.Handle(ctx, Message{UserID: 30, Text: "new question"})
	assert.Equal(t, []string{WaitNotice}, h.sender.texts())

	close(answerer.release)
	<-done

	sess, ok := h.sessions.Get(30)
	require.True(t, ok)
	assert.NotEqual(t, old.ID, sess.ID)
	assert.Empty(t, sess.History)
	assert.False(t, sess.Processing)
}

func TestHandle_SweptRequestDoesNotReleaseNewGate(t *testing.T) {
	clock := &stepClock{now: time.Date(2024, 11, 1, 9, 0, 0, 0, time.UTC)}
	answerer := &scriptedAnswerer{release: make(chan struct{}), started: make(chan struct{}, 1)}
	h := newClockedHarness(t, answerer, clock)
	h.dispatcher.answerTimeout = 0
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		h.dispatcher.Handle(ctx, Message{UserID: 31, Text: "slow"})
		close(done)
	}()
	<-answerer.started

	clock.Advance(6 * time.Minute)
	require.Equal(t, []int64{31}, h.sessions.SweepExpired(clock.Now()))
	inFlight, ok := h.sessions.Begin(31, "rae")
	require.True(t, ok)

	close(answerer.release)
	<-done

	sess, _ := h.sessions.Get(31)
	assert.Equal(t, inFlight.ID, sess.ID)
	assert.True(t, sess.Processing)
	assert.Empty(t, sess.History)

	h.dispatcher.Handle(ctx, Message{UserID: 31, Text: "third"})
	assert.Equal(t, WaitNotice, h.sender.texts()[len(h.sender.texts())-1])
	assert.Equal(t, 1, answerer.callCount())
}

func TestHandle_TypingRefreshedWhileWaiting(t *testing.T) {
	answerer := &scriptedAnswerer{release: make(chan struct{}), started: make(chan struct{}, 1)}
	h := newHarness(t, answerer)
	h.dispatcher.typingInterval = 5 * time.Millisecond

	done := make(chan struct{})
	go func() {
		h.dispatcher.Handle(context.Background(), Message{UserID: 32, Text: "long answer please"})
		close(done)
	}()
	<-answerer.started

	assert.Eventually(t, func() bool { return h.sender.typingCount() >= 3 },
		time.Second, 5*time.Millisecond)

	close(answerer.release)
	<-done
	settled := h.sender.typingCount()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, settled, h.sender.typingCount(), "typing stops with the answer")
}

type echoFlow struct {
	active map[int64]bool
}

func (f echoFlow) Intercept(_ context.Context, msg Message) ([]Reply, bool) {
	if !f.active[msg.UserID] {
		return nil, false
	}
	return []Reply{{Text: "flow got " + msg.Text}}, true
}

func TestHandle_FlowClaimsFreeText(t *testing.T) {
	answerer := &scriptedAnswerer{}
	h := newHarness(t, answerer)
	h.dispatcher.HandleFlow(echoFlow{active: map[int64]bool{33: true}})
	ctx := context.Background()

	h.dispatcher.Handle(ctx, Message{UserID: 33, Text: "25"})
	h.dispatcher.Handle(ctx, Message{UserID: 34, Text: "what is CPF?"})

	assert.Equal(t, []string{"flow got 25", "echo: what is CPF?"}, h.sender.texts())
	assert.Equal(t, 1, answerer.callCount())
	_, ok := h.sessions.Get(33)
	assert.False(t, ok, "flow messages do not open a session")
}
