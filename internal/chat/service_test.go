package chat

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"

	"github.com/suPer8Hu/ai-concierge/internal/ai"
	"github.com/suPer8Hu/ai-concierge/internal/apierr"
	"github.com/suPer8Hu/ai-concierge/internal/config"
	"github.com/suPer8Hu/ai-concierge/internal/content"
	"github.com/suPer8Hu/ai-concierge/internal/db/dbtest"
	"github.com/suPer8Hu/ai-concierge/internal/logger"
	"github.com/suPer8Hu/ai-concierge/internal/retrieval"
	"github.com/suPer8Hu/ai-concierge/internal/usage"
)

type recordingProvider struct {
	mu       sync.Mutex
	text     string
	err      error
	calls    int
	last     []ai.Message
	settings ai.Settings
}

func (p *recordingProvider) Chat(ctx context.Context, messages []ai.Message, opts ...ai.Option) (ai.Completion, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	// copy to avoid mutations
	p.last = append([]ai.Message(nil), messages...)
	p.settings = ai.Apply(opts...)
	if p.err != nil {
		return ai.Completion{}, p.err
	}
	return ai.Completion{Text: p.text, Model: "fake", Usage: ai.Usage{PromptTokens: 7, CompletionTokens: 3}}, nil
}

func (p *recordingProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type captureRecorder struct {
	mu     sync.Mutex
	events []usage.Event
}

func (r *captureRecorder) Record(_ context.Context, e usage.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

type failingContext struct{}

var errContext = errors.New("store down")

func (failingContext) Knowledge(context.Context, string, string, string) (string, error) {
	return "", errContext
}
func (failingContext) FAQ(context.Context, string, string, string) (string, error) {
	return "", errContext
}
func (failingContext) Rules(context.Context, string) (string, error) { return "", errContext }
func (failingContext) Vault(context.Context, string, string) (string, error) {
	return "", errContext
}
func (failingContext) Lessons(context.Context, string) (string, error) { return "", errContext }

type fixture struct {
	db         *gorm.DB
	repo       *Repo
	svc        *Service
	classifier *recordingProvider
	replier    *recordingProvider
	usage      *captureRecorder
}

func newFixture(t *testing.T, retr ContextSource) *fixture {
	t.Helper()
	models := append(content.Tables(), Tables()...)
	gdb := dbtest.Open(t, models...)

	require.NoError(t, gdb.Create(&content.CompanyProfile{ID: "c1", Name: "Acme", Industry: "Software"}).Error)
	require.NoError(t, gdb.Create(&content.Bot{ID: "b1", CompanyID: "c1", Name: "Ava", Persona: "You are Ava from Acme."}).Error)

	cfg := config.DefaultAssistant()
	cfg.ClassifierProvider = "intent"
	cfg.ReplyProvider = "reply"
	cfg.ReplyModel = "default"

	f := &fixture{
		db:         gdb,
		repo:       NewRepo(gdb),
		classifier: &recordingProvider{text: "sales"},
		replier:    &recordingProvider{text: "Happy to help!"},
		usage:      &captureRecorder{},
	}
	reg := ai.NewRegistry()
	reg.Register("intent", func(ctx context.Context, model string) (ai.Provider, error) { return f.classifier, nil })
	reg.Register("reply", func(ctx context.Context, model string) (ai.Provider, error) { return f.replier, nil })

	crepo := content.NewRepo(gdb)
	if retr == nil {
		retr = retrieval.NewRetriever(crepo, cfg)
	}
	f.svc = NewService(Deps{
		Repo:     f.repo,
		Content:  crepo,
		Context:  retr,
		Registry: reg,
		Usage:    f.usage,
	}, cfg)
	return f
}

func (f *fixture) session(t *testing.T, id string, mutate func(*Session)) *Session {
	t.Helper()
	s := &Session{ID: id, BotID: "b1", VisitorID: "v1", Status: StatusActive, Language: "en"}
	if mutate != nil {
		mutate(s)
	}
	require.NoError(t, f.repo.CreateSession(context.Background(), s))
	return s
}

func (f *fixture) reload(t *testing.T, id string) *Session {
	t.Helper()
	s, err := f.repo.GetSession(context.Background(), id)
	require.NoError(t, err)
	return s
}

func (f *fixture) messages(t *testing.T, id string) []Message {
	t.Helper()
	msgs, err := f.repo.ListMessages(context.Background(), id, 100)
	require.NoError(t, err)
	return msgs
}

func strPtr(s string) *string { return &s }

func requireAPIErr(t *testing.T, err error, status, code int) {
	t.Helper()
	var ae *apierr.Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, status, ae.Status)
	assert.Equal(t, code, ae.Code)
}

func TestHandleMessage_PersistsTurnAndIncrementsCount(t *testing.T) {
	f := newFixture(t, nil)
	f.session(t, "s1", nil)

	out, err := f.svc.HandleMessage(context.Background(), Request{BotID: "b1", SessionID: "s1", Message: "How much is the pro plan?", Lang: "es"})
	require.NoError(t, err)
	f.svc.Wait()

	require.NotNil(t, out.Reply)
	assert.Equal(t, "Happy to help!", *out.Reply)
	assert.Equal(t, "sales", out.Intent)
	assert.Equal(t, 1, out.MessageCount)
	assert.False(t, out.AskForLead)

	msgs := f.messages(t, "s1")
	require.Len(t, msgs, 2)
	assert.Equal(t, ai.RoleUser, msgs[0].Role)
	assert.Equal(t, "How much is the pro plan?", msgs[0].Content)
	assert.Equal(t, ai.RoleAssistant, msgs[1].Role)
	assert.Equal(t, "Happy to help!", msgs[1].Content)

	sess := f.reload(t, "s1")
	assert.Equal(t, 1, sess.MessageCount)
	assert.Equal(t, "es", sess.Language)
	require.NotNil(t, sess.DetectedIntent)
	assert.Equal(t, "sales", *sess.DetectedIntent)

	require.Len(t, f.usage.events, 2)
	kinds := []string{f.usage.events[0].Kind, f.usage.events[1].Kind}
	assert.ElementsMatch(t, []string{usage.KindClassify, usage.KindReply}, kinds)
}

func TestHandleMessage_ComposesPromptFromContext(t *testing.T) {
	f := newFixture(t, nil)
	f.session(t, "s1", func(s *Session) { s.DetectedIntent = strPtr("support") })
	require.NoError(t, f.db.Create(&content.KnowledgeArticle{BotID: "b1", Category: "support", Title: "Password reset", Content: "Use the reset link."}).Error)
	require.NoError(t, f.db.Create(&content.Rule{BotID: "b1", Category: "tone", Text: "Never promise refunds.", Priority: 1, Active: true}).Error)
	require.NoError(t, f.repo.InsertTurn(context.Background(),
		&Message{SessionID: "s1", Role: ai.RoleUser, Content: "hi"},
		&Message{SessionID: "s1", Role: ai.RoleAssistant, Content: "hello"},
	))

	_, err := f.svc.HandleMessage(context.Background(), Request{BotID: "b1", SessionID: "s1", Message: "password reset please"})
	require.NoError(t, err)

	system := f.replier.settings.System
	assert.True(t, strings.HasPrefix(system, "You are Ava from Acme."))
	assert.Contains(t, system, "Company: Acme")
	assert.Contains(t, system, "### Password reset")
	assert.Contains(t, system, "[tone] Never promise refunds.")
	assert.Contains(t, system, "classified as: support")

	require.Len(t, f.replier.last, 3)
	assert.Equal(t, "hi", f.replier.last[0].Content)
	assert.Equal(t, "hello", f.replier.last[1].Content)
	assert.Equal(t, "password reset please", f.replier.last[2].Content)
}

func TestHandleMessage_DuplicateWithinWindowIsSkipped(t *testing.T) {
	f := newFixture(t, nil)
	f.session(t, "s1", nil)
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f.svc.now = func() time.Time { return clock }

	req := Request{BotID: "b1", SessionID: "s1", Message: "hello"}
	first, err := f.svc.HandleMessage(context.Background(), req)
	require.NoError(t, err)
	f.svc.Wait()

	clock = clock.Add(3 * time.Second)
	second, err := f.svc.HandleMessage(context.Background(), req)
	require.NoError(t, err)
	f.svc.Wait()

	assert.Equal(t, 1, first.MessageCount)
	assert.Equal(t, 1, second.MessageCount)
	assert.Len(t, f.messages(t, "s1"), 2)
	assert.Equal(t, 1, f.reload(t, "s1").MessageCount)

	clock = clock.Add(time.Minute)
	third, err := f.svc.HandleMessage(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 2, third.MessageCount)
	assert.Len(t, f.messages(t, "s1"), 4)
}

func TestHandleMessage_DedupWindowBoundary(t *testing.T) {
	f := newFixture(t, nil)
	f.session(t, "s1", nil)
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f.svc.now = func() time.Time { return clock }

	req := Request{BotID: "b1", SessionID: "s1", Message: "hello"}
	_, err := f.svc.HandleMessage(context.Background(), req)
	require.NoError(t, err)
	f.svc.Wait()

	// the window is inclusive
	clock = clock.Add(f.svc.cfg.DedupWindow)
	edge, err := f.svc.HandleMessage(context.Background(), req)
	require.NoError(t, err)
	f.svc.Wait()
	assert.Equal(t, 1, edge.MessageCount)
	assert.Len(t, f.messages(t, "s1"), 2)

	clock = clock.Add(time.Nanosecond)
	past, err := f.svc.HandleMessage(context.Background(), req)
	require.NoError(t, err)
	f.svc.Wait()
	assert.Equal(t, 2, past.MessageCount)
	assert.Len(t, f.messages(t, "s1"), 4)
}

func TestHandleMessage_CachedIntentSkipsClassifier(t *testing.T) {
	f := newFixture(t, nil)
	f.session(t, "s1", func(s *Session) { s.DetectedIntent = strPtr("support") })

	out, err := f.svc.HandleMessage(context.Background(), Request{BotID: "b1", SessionID: "s1", Message: "it crashes"})
	require.NoError(t, err)

	assert.Equal(t, "support", out.Intent)
	assert.Equal(t, 0, f.classifier.Calls())
}

func TestHandleMessage_GeneralIntentIsRecomputed(t *testing.T) {
	f := newFixture(t, nil)
	f.classifier.text = "general"
	f.session(t, "s1", func(s *Session) { s.DetectedIntent = strPtr("general") })

	out, err := f.svc.HandleMessage(context.Background(), Request{BotID: "b1", SessionID: "s1", Message: "hey"})
	require.NoError(t, err)
	f.svc.Wait()

	assert.Equal(t, "general", out.Intent)
	assert.Equal(t, 1, f.classifier.Calls())
	assert.Equal(t, 5, f.classifier.settings.MaxTokens)
	assert.Equal(t, "general", *f.reload(t, "s1").DetectedIntent)
}

func TestHandleMessage_ClassifierFailureFallsBackToGeneral(t *testing.T) {
	f := newFixture(t, nil)
	f.classifier.err = errors.New("timeout")
	f.session(t, "s1", nil)

	out, err := f.svc.HandleMessage(context.Background(), Request{BotID: "b1", SessionID: "s1", Message: "hello"})
	require.NoError(t, err)
	f.svc.Wait()

	assert.Equal(t, "general", out.Intent)
	assert.Nil(t, f.reload(t, "s1").DetectedIntent)
}

func TestHandleMessage_BranchFailuresDegrade(t *testing.T) {
	f := newFixture(t, failingContext{})
	f.session(t, "s1", nil)

	out, err := f.svc.HandleMessage(context.Background(), Request{BotID: "b1", SessionID: "s1", Message: "hello"})
	require.NoError(t, err)

	assert.Equal(t, "Happy to help!", *out.Reply)
	assert.NotContains(t, f.replier.settings.System, "## Knowledge base")
	assert.NotContains(t, f.replier.settings.System, "## Rules")
}

func TestHandleMessage_EmptyReplyUsesFallback(t *testing.T) {
	f := newFixture(t, nil)
	f.replier.text = "   "
	f.session(t, "s1", nil)

	out, err := f.svc.HandleMessage(context.Background(), Request{BotID: "b1", SessionID: "s1", Message: "hola", Lang: "es"})
	require.NoError(t, err)

	assert.Equal(t, config.DefaultAssistant().FallbackReply("es"), *out.Reply)
	assert.Equal(t, 1, out.MessageCount)
}

func TestHandleMessage_GenerationFailureSurfaces(t *testing.T) {
	f := newFixture(t, nil)
	f.replier.err = errors.New("connection refused")
	f.session(t, "s1", func(s *Session) { s.MessageCount = 2 })

	_, err := f.svc.HandleMessage(context.Background(), Request{BotID: "b1", SessionID: "s1", Message: "hello"})
	f.svc.Wait()
	requireAPIErr(t, err, http.StatusInternalServerError, CodeGeneration)
	assert.ErrorIs(t, err, ErrGeneration)

	assert.Empty(t, f.messages(t, "s1"))
	assert.Equal(t, 2, f.reload(t, "s1").MessageCount)
}

func TestHandleMessage_SessionGate(t *testing.T) {
	f := newFixture(t, nil)
	f.session(t, "open", nil)
	f.session(t, "closed", func(s *Session) { s.Status = StatusClosed })

	_, err := f.svc.HandleMessage(context.Background(), Request{BotID: "b1", SessionID: "missing", Message: "hi"})
	requireAPIErr(t, err, http.StatusNotFound, CodeNotFound)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.svc.HandleMessage(context.Background(), Request{BotID: "other", SessionID: "open", Message: "hi"})
	requireAPIErr(t, err, http.StatusNotFound, CodeNotFound)

	_, err = f.svc.HandleMessage(context.Background(), Request{BotID: "b1", SessionID: "closed", Message: "hi"})
	requireAPIErr(t, err, http.StatusBadRequest, CodeSessionClosed)
	assert.ErrorIs(t, err, ErrSessionClosed)

	assert.Equal(t, 0, f.classifier.Calls())
	assert.Equal(t, 0, f.replier.Calls())
}

func TestHandleMessage_Validation(t *testing.T) {
	f := newFixture(t, nil)
	f.session(t, "s1", nil)

	cases := []struct {
		name string
		req  Request
	}{
		{"missing bot", Request{SessionID: "s1", Message: "hi"}},
		{"missing session", Request{BotID: "b1", Message: "hi"}},
		{"blank message", Request{BotID: "b1", SessionID: "s1", Message: "   "}},
		{"oversized message", Request{BotID: "b1", SessionID: "s1", Message: strings.Repeat("a", 4001)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.HandleMessage(context.Background(), tc.req)
			requireAPIErr(t, err, http.StatusBadRequest, CodeInvalidField)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestHandleMessage_LeadOnlyPath(t *testing.T) {
	f := newFixture(t, nil)
	f.session(t, "s1", func(s *Session) {
		s.MessageCount = 3
		s.DetectedIntent = strPtr("sales")
	})
	req := Request{BotID: "b1", SessionID: "s1", LeadName: "Dana", LeadEmail: "dana@example.com", LeadCompany: "Initech"}

	out, err := f.svc.HandleMessage(context.Background(), req)
	require.NoError(t, err)
	assert.Nil(t, out.Reply)
	assert.True(t, out.LeadSaved)
	assert.Equal(t, "sales", out.Intent)
	assert.Equal(t, 3, out.MessageCount)

	// retry is a no-op
	again, err := f.svc.HandleMessage(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, again.LeadSaved)

	var leads []Lead
	require.NoError(t, f.db.Where("session_id = ?", "s1").Find(&leads).Error)
	require.Len(t, leads, 1)
	assert.Equal(t, "dana@example.com", leads[0].Email)
	assert.Equal(t, "sales", leads[0].Intent)
	assert.Equal(t, "Captured after 3 messages", leads[0].Notes)

	assert.Equal(t, 0, f.classifier.Calls())
	assert.Equal(t, 0, f.replier.Calls())
	assert.Equal(t, 3, f.reload(t, "s1").MessageCount)

	// the capture marker never reaches the backend
	_, err = f.svc.HandleMessage(context.Background(), Request{BotID: "b1", SessionID: "s1", Message: "thanks"})
	require.NoError(t, err)
	for _, m := range f.replier.last {
		assert.NotEqual(t, config.DefaultAssistant().LeadMarker, m.Content)
	}
}

func TestHandleMessage_LeadWithoutEmailIsNotStored(t *testing.T) {
	f := newFixture(t, nil)
	f.session(t, "s1", nil)

	out, err := f.svc.HandleMessage(context.Background(), Request{BotID: "b1", SessionID: "s1", LeadName: "Dana"})
	require.NoError(t, err)
	assert.True(t, out.LeadSaved)

	lead, err := f.repo.GetLeadBySession(context.Background(), "s1")
	require.NoError(t, err)
	assert.Nil(t, lead)
}

func TestHandleMessage_AsksForLeadOnNewCount(t *testing.T) {
	f := newFixture(t, nil)
	f.session(t, "s1", func(s *Session) { s.MessageCount = 3 })
	f.session(t, "s2", func(s *Session) { s.MessageCount = 3 })
	require.NoError(t, f.repo.InsertLead(context.Background(), &Lead{ID: "l1", SessionID: "s2", BotID: "b1", Email: "x@example.com"}))

	out, err := f.svc.HandleMessage(context.Background(), Request{BotID: "b1", SessionID: "s1", Message: "ok"})
	require.NoError(t, err)
	assert.Equal(t, 4, out.MessageCount)
	assert.True(t, out.AskForLead)

	out, err = f.svc.HandleMessage(context.Background(), Request{BotID: "b1", SessionID: "s2", Message: "ok"})
	require.NoError(t, err)
	assert.Equal(t, 4, out.MessageCount)
	assert.False(t, out.AskForLead)
}

func TestHandleMessage_BotModelOverride(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.db.Model(&content.Bot{}).Where("id = ?", "b1").Update("model", "tuned").Error)
	f.session(t, "s1", nil)

	var models []string
	var mu sync.Mutex
	f.svc.registry.Register("reply", func(ctx context.Context, model string) (ai.Provider, error) {
		mu.Lock()
		models = append(models, model)
		mu.Unlock()
		return f.replier, nil
	})

	_, err := f.svc.HandleMessage(context.Background(), Request{BotID: "b1", SessionID: "s1", Message: "hello"})
	require.NoError(t, err)
	assert.Equal(t, []string{"tuned"}, models)
}

func TestTranscript_IncludesMarkerAndChecksBot(t *testing.T) {
	f := newFixture(t, nil)
	f.session(t, "s1", nil)

	_, err := f.svc.HandleMessage(context.Background(), Request{BotID: "b1", SessionID: "s1", Message: "hello"})
	require.NoError(t, err)
	_, err = f.svc.HandleMessage(context.Background(), Request{BotID: "b1", SessionID: "s1", LeadEmail: "a@example.com"})
	require.NoError(t, err)
	f.svc.Wait()

	msgs, err := f.svc.Transcript(context.Background(), "s1", "b1", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, config.DefaultAssistant().LeadMarker, msgs[2].Content)

	_, err = f.svc.Transcript(context.Background(), "s1", "other", 0)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestHandleMessage_UsesHistoryWindow(t *testing.T) {
	f := newFixture(t, nil)
	f.session(t, "s1", func(s *Session) { s.DetectedIntent = strPtr("support") })

	// seed more history than the window holds
	for i := 0; i < 15; i++ {
		require.NoError(t, f.repo.InsertTurn(context.Background(),
			&Message{SessionID: "s1", Role: ai.RoleUser, Content: "seed"},
			&Message{SessionID: "s1", Role: ai.RoleAssistant, Content: "seed reply"},
		))
	}

	_, err := f.svc.HandleMessage(context.Background(), Request{BotID: "b1", SessionID: "s1", Message: "new"})
	require.NoError(t, err)

	window := config.DefaultAssistant().HistoryLimit
	require.Len(t, f.replier.last, window+1)
	// oldest first, ending with the turn just sent
	assert.Equal(t, ai.RoleUser, f.replier.last[0].Role)
	last := f.replier.last[len(f.replier.last)-1]
	assert.Equal(t, ai.RoleUser, last.Role)
	assert.Equal(t, "new", last.Content)
}

func TestPersistIntentAsync_DoesNotOverwriteSpecificIntent(t *testing.T) {
	f := newFixture(t, nil)
	f.session(t, "s1", nil)

	// another turn stored its label first
	require.NoError(t, f.repo.UpdateSessionIntent(context.Background(), "s1", "support"))
	f.svc.persistIntentAsync("s1", "sales")
	f.svc.Wait()

	sess := f.reload(t, "s1")
	require.NotNil(t, sess.DetectedIntent)
	assert.Equal(t, "support", *sess.DetectedIntent)
}

func TestHandleMessage_IntentWriteBackFailureIsOnlyLogged(t *testing.T) {
	f := newFixture(t, nil)
	f.session(t, "s1", nil)

	core, logs := observer.New(zapcore.DebugLevel)
	f.svc.log = &logger.Logger{SugaredLogger: zap.New(core).Sugar()}

	errWrite := errors.New("disk full")
	require.NoError(t, f.db.Callback().Update().Before("gorm:update").Register("test:fail_intent", func(tx *gorm.DB) {
		if dest, ok := tx.Statement.Dest.(map[string]interface{}); ok {
			if _, ok := dest["detected_intent"]; ok {
				_ = tx.AddError(errWrite)
			}
		}
	}))

	out, err := f.svc.HandleMessage(context.Background(), Request{BotID: "b1", SessionID: "s1", Message: "How much is the pro plan?"})
	require.NoError(t, err)
	f.svc.Wait()

	require.NotNil(t, out.Reply)
	assert.Equal(t, "Happy to help!", *out.Reply)
	assert.Equal(t, "sales", out.Intent)
	assert.Equal(t, 1, out.MessageCount)
	assert.Nil(t, f.reload(t, "s1").DetectedIntent)

	failed := logs.FilterMessage("intent write-back failed")
	require.Equal(t, 1, failed.Len())
	fields := failed.All()[0].ContextMap()
	assert.Equal(t, "s1", fields["session_id"])
	assert.Equal(t, "sales", fields["intent"])
}
