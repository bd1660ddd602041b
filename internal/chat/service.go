package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/suPer8Hu/ai-concierge/internal/ai"
	"github.com/suPer8Hu/ai-concierge/internal/common"
	"github.com/suPer8Hu/ai-concierge/internal/config"
	"github.com/suPer8Hu/ai-concierge/internal/content"
	"github.com/suPer8Hu/ai-concierge/internal/intent"
	"github.com/suPer8Hu/ai-concierge/internal/logger"
	"github.com/suPer8Hu/ai-concierge/internal/prompt"
	"github.com/suPer8Hu/ai-concierge/internal/usage"
)

// ContentSource serves bot configuration and company identity.
type ContentSource interface {
	GetBot(ctx context.Context, id string) (*content.Bot, error)
	CompanyForBot(ctx context.Context, botID string) (*content.CompanyProfile, error)
}

// ContextSource renders the retrieved prompt blocks. Implemented by retrieval.Retriever.
type ContextSource interface {
	Knowledge(ctx context.Context, botID, intent, message string) (string, error)
	FAQ(ctx context.Context, botID, intent, message string) (string, error)
	Rules(ctx context.Context, botID string) (string, error)
	Vault(ctx context.Context, companyID, fallback string) (string, error)
	Lessons(ctx context.Context, botID string) (string, error)
}

type Deps struct {
	Repo     *Repo
	Content  ContentSource
	Context  ContextSource
	Registry *ai.Registry
	Usage    usage.Recorder
	Log      *logger.Logger
}

type Service struct {
	repo     *Repo
	content  ContentSource
	retr     ContextSource
	registry *ai.Registry
	usage    usage.Recorder
	log      *logger.Logger
	cfg      config.Assistant
	composer *prompt.Composer

	now func() time.Time
	bg  sync.WaitGroup
}

func NewService(d Deps, cfg config.Assistant) *Service {
	if d.Usage == nil {
		d.Usage = usage.Nop{}
	}
	if d.Log == nil {
		d.Log = logger.Nop()
	}
	return &Service{
		repo:     d.Repo,
		content:  d.Content,
		retr:     d.Context,
		registry: d.Registry,
		usage:    d.Usage,
		log:      d.Log,
		cfg:      cfg,
		composer: prompt.NewComposer(cfg),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Request is one inbound widget message. Lead fields switch the request to
// the lead-only path.
type Request struct {
	BotID       string
	SessionID   string
	Message     string
	Lang        string
	LeadName    string
	LeadEmail   string
	LeadPhone   string
	LeadCompany string
}

func (r Request) hasLead() bool {
	return r.LeadName != "" || r.LeadEmail != ""
}

// Reply.Reply is nil on the lead-only path.
type Reply struct {
	Reply        *string `json:"reply"`
	Intent       string  `json:"intent"`
	MessageCount int     `json:"messageCount"`
	AskForLead   bool    `json:"askForLead"`
	LeadSaved    bool    `json:"leadSaved,omitempty"`
}

var supportedLangs = map[string]bool{"en": true, "es": true}

func (s *Service) normalize(req Request) (Request, error) {
	req.BotID = strings.TrimSpace(req.BotID)
	req.SessionID = strings.TrimSpace(req.SessionID)
	req.Message = strings.TrimSpace(req.Message)
	req.LeadName = strings.TrimSpace(req.LeadName)
	req.LeadEmail = strings.TrimSpace(req.LeadEmail)
	req.LeadPhone = strings.TrimSpace(req.LeadPhone)
	req.LeadCompany = strings.TrimSpace(req.LeadCompany)

	req.Lang = strings.ToLower(strings.TrimSpace(req.Lang))
	if !supportedLangs[req.Lang] {
		req.Lang = "en"
	}

	switch {
	case req.BotID == "":
		return req, validationErr("botId is required")
	case req.SessionID == "":
		return req, validationErr("sessionId is required")
	case req.Message == "" && !req.hasLead():
		return req, validationErr("message is required")
	case s.cfg.MaxMessageChars > 0 && utf8.RuneCountInString(req.Message) > s.cfg.MaxMessageChars:
		return req, validationErr("message exceeds %d characters", s.cfg.MaxMessageChars)
	}
	return req, nil
}

// ValidateSession is the gate before any paid work. It has no side effects.
func (s *Service) ValidateSession(ctx context.Context, sessionID, botID string) (*Session, error) {
	sess, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFoundErr()
		}
		return nil, internalErr("load session", err)
	}
	if sess.BotID != botID {
		return nil, notFoundErr()
	}
	if sess.Status == StatusClosed {
		return nil, closedErr()
	}
	return sess, nil
}

// HandleMessage runs one visitor turn end to end.
// The caller's cancellation is not propagated: once the gate passes, the turn
// runs to completion so a retried request finds it persisted.
func (s *Service) HandleMessage(ctx context.Context, req Request) (*Reply, error) {
	ctx = context.WithoutCancel(ctx)

	req, err := s.normalize(req)
	if err != nil {
		return nil, err
	}
	sess, err := s.ValidateSession(ctx, req.SessionID, req.BotID)
	if err != nil {
		return nil, err
	}
	if req.hasLead() {
		return s.saveLeadOnly(ctx, sess, req)
	}

	base := s.gatherBase(ctx, sess)
	tc := s.gatherContext(ctx, sess, base, req.Message)

	persona := ""
	if base.bot != nil {
		persona = base.bot.Persona
	}
	system := s.composer.Compose(prompt.Input{
		Persona:   persona,
		Language:  req.Lang,
		Company:   base.company.Identity(),
		Lessons:   tc.lessons,
		Rules:     tc.rules,
		FAQ:       tc.faq,
		Knowledge: tc.knowledge,
		Vault:     tc.vault,
		Intent:    tc.intent,
	})

	text, err := s.generate(ctx, sess, base, system, req)
	if err != nil {
		return nil, err
	}

	count, err := s.persistTurn(ctx, sess, req, text)
	if err != nil {
		return nil, err
	}

	return &Reply{
		Reply:        &text,
		Intent:       tc.intent,
		MessageCount: count,
		AskForLead:   ShouldAskForLead(s.cfg, count, s.hasLead(ctx, sess.ID), text),
	}, nil
}

func (s *Service) saveLeadOnly(ctx context.Context, sess *Session, req Request) (*Reply, error) {
	label := intent.General
	if sess.DetectedIntent != nil && *sess.DetectedIntent != "" {
		label = *sess.DetectedIntent
	}

	existing, err := s.repo.GetLeadBySession(ctx, sess.ID)
	if err != nil {
		return nil, internalErr("load lead", err)
	}
	if existing == nil && req.LeadEmail != "" {
		id, err := common.NewULID()
		if err != nil {
			return nil, internalErr("lead id", err)
		}
		lead := &Lead{
			ID:        id,
			SessionID: sess.ID,
			BotID:     sess.BotID,
			Name:      req.LeadName,
			Email:     req.LeadEmail,
			Phone:     req.LeadPhone,
			Company:   req.LeadCompany,
			Intent:    label,
			Notes:     fmt.Sprintf("Captured after %d messages", sess.MessageCount),
		}
		if err := s.repo.InsertLead(ctx, lead); err != nil {
			return nil, internalErr("insert lead", err)
		}
		s.log.Info("lead captured", "session_id", sess.ID, "bot_id", sess.BotID, "lead_name", req.LeadName, "email", req.LeadEmail)

		if s.cfg.LeadMarker != "" {
			marker := &Message{SessionID: sess.ID, Role: ai.RoleAssistant, Content: s.cfg.LeadMarker, CreatedAt: s.now()}
			if err := s.repo.InsertMessage(ctx, marker); err != nil {
				s.log.Warn("lead marker insert failed", "session_id", sess.ID, "err", err)
			}
		}
	}

	return &Reply{
		Intent:       label,
		MessageCount: sess.MessageCount,
		LeadSaved:    true,
	}, nil
}

type baseContext struct {
	bot     *content.Bot
	company *content.CompanyProfile
	history []ai.Message
}

// gatherBase is stage one: inputs that do not depend on intent.
// Branches never fail the stage; they log and leave their slot empty.
func (s *Service) gatherBase(ctx context.Context, sess *Session) baseContext {
	var out baseContext
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		bot, err := s.content.GetBot(gctx, sess.BotID)
		if err != nil {
			s.degraded("bot", sess.ID, err)
			return nil
		}
		out.bot = bot
		return nil
	})
	g.Go(func() error {
		c, err := s.content.CompanyForBot(gctx, sess.BotID)
		if err != nil {
			s.degraded("company", sess.ID, err)
			return nil
		}
		out.company = c
		return nil
	})
	g.Go(func() error {
		rows, err := s.repo.RecentHistory(gctx, sess.ID, s.cfg.HistoryLimit, s.cfg.LeadMarker)
		if err != nil {
			s.degraded("history", sess.ID, err)
			return nil
		}
		// DESC -> ASC
		msgs := make([]ai.Message, 0, len(rows))
		for i := len(rows) - 1; i >= 0; i-- {
			msgs = append(msgs, ai.Message{Role: rows[i].Role, Content: rows[i].Content})
		}
		out.history = msgs
		return nil
	})

	_ = g.Wait()
	return out
}

type turnContext struct {
	intent    string
	knowledge string
	faq       string
	rules     string
	vault     string
	lessons   string
}

// gatherContext is stage two. Retrieval is scoped by the session's cached
// intent; classification runs alongside it and its label goes into the prompt.
func (s *Service) gatherContext(ctx context.Context, sess *Session, base baseContext, message string) turnContext {
	var out turnContext

	scope := intent.General
	if sess.DetectedIntent != nil && *sess.DetectedIntent != "" {
		scope = *sess.DetectedIntent
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if intent.CacheValid(sess.DetectedIntent) {
			out.intent = *sess.DetectedIntent
			return nil
		}
		out.intent = s.classify(gctx, sess, base.history, message)
		if out.intent != intent.General {
			s.persistIntentAsync(sess.ID, out.intent)
		}
		return nil
	})

	block := func(name string, slot *string, fetch func(context.Context) (string, error)) {
		g.Go(func() error {
			v, err := fetch(gctx)
			if err != nil {
				s.degraded(name, sess.ID, err)
				return nil
			}
			*slot = v
			return nil
		})
	}
	block("knowledge", &out.knowledge, func(ctx context.Context) (string, error) {
		return s.retr.Knowledge(ctx, sess.BotID, scope, message)
	})
	block("faq", &out.faq, func(ctx context.Context) (string, error) {
		return s.retr.FAQ(ctx, sess.BotID, scope, message)
	})
	block("rules", &out.rules, func(ctx context.Context) (string, error) {
		return s.retr.Rules(ctx, sess.BotID)
	})
	block("vault", &out.vault, func(ctx context.Context) (string, error) {
		companyID, fallback := "", ""
		if base.company != nil {
			companyID, fallback = base.company.ID, base.company.VaultSummary
		}
		return s.retr.Vault(ctx, companyID, fallback)
	})
	block("lessons", &out.lessons, func(ctx context.Context) (string, error) {
		return s.retr.Lessons(ctx, sess.BotID)
	})

	_ = g.Wait()
	return out
}

func (s *Service) classify(ctx context.Context, sess *Session, history []ai.Message, message string) string {
	provider, err := s.registry.Get(ctx, s.cfg.ClassifierProvider, s.cfg.ClassifierModel)
	if err != nil {
		s.degraded("intent", sess.ID, err)
		return intent.General
	}
	label, out, err := intent.NewClassifier(provider, s.cfg.ClassifierMaxTokens, s.cfg.ClassifierTemperature).
		Classify(ctx, history, message)
	if err != nil {
		s.degraded("intent", sess.ID, err)
		return intent.General
	}
	s.meter(usage.KindClassify, sess, s.cfg.ClassifierProvider, out)
	return label
}

// persistIntentAsync writes the label back without blocking the turn.
// Failures only reach the log.
func (s *Service) persistIntentAsync(sessionID, label string) {
	errs := make(chan error, 1)
	s.bg.Add(2)
	go func() {
		defer s.bg.Done()
		defer close(errs)
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.IntentWriteTimeout)
		defer cancel()
		if err := s.repo.UpdateSessionIntent(ctx, sessionID, label); err != nil {
			errs <- err
		}
	}()
	go func() {
		defer s.bg.Done()
		for err := range errs {
			s.log.Warn("intent write-back failed", "session_id", sessionID, "intent", label, "err", err)
		}
	}()
}

// Wait blocks until background intent writes have finished.
func (s *Service) Wait() {
	s.bg.Wait()
}

func (s *Service) generate(ctx context.Context, sess *Session, base baseContext, system string, req Request) (string, error) {
	model := s.cfg.ReplyModel
	if base.bot != nil && strings.TrimSpace(base.bot.Model) != "" {
		model = base.bot.Model
	}
	provider, err := s.registry.Get(ctx, s.cfg.ReplyProvider, model)
	if err != nil {
		return "", generationErr(err)
	}

	msgs := make([]ai.Message, 0, len(base.history)+1)
	msgs = append(msgs, base.history...)
	msgs = append(msgs, ai.Message{Role: ai.RoleUser, Content: req.Message})

	out, err := provider.Chat(ctx, msgs,
		ai.WithSystem(system),
		ai.WithTemperature(s.cfg.ReplyTemperature),
		ai.WithMaxTokens(s.cfg.ReplyMaxTokens),
	)
	if err != nil {
		s.log.Error("reply generation failed", "session_id", sess.ID, "provider", s.cfg.ReplyProvider, "model", model, "err", err)
		return "", generationErr(err)
	}
	s.meter(usage.KindReply, sess, s.cfg.ReplyProvider, out)

	text := strings.TrimSpace(out.Text)
	if text == "" {
		s.log.Warn("empty reply, using fallback", "session_id", sess.ID, "model", model)
		return s.cfg.FallbackReply(req.Lang), nil
	}
	return text, nil
}

// persistTurn stores the user/assistant pair and bumps the session counter.
// A repeat of the same user content inside the dedup window writes nothing
// and reports the stored count.
func (s *Service) persistTurn(ctx context.Context, sess *Session, req Request, reply string) (int, error) {
	now := s.now()

	dup, err := s.repo.HasRecentUserMessage(ctx, sess.ID, req.Message, now.Add(-s.cfg.DedupWindow))
	if err != nil {
		s.log.Warn("dedup check failed", "session_id", sess.ID, "err", err)
	}
	if dup {
		s.log.Info("duplicate turn skipped", "session_id", sess.ID)
		return sess.MessageCount, nil
	}

	count := sess.MessageCount + 1
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.repo.InsertTurn(gctx,
			&Message{SessionID: sess.ID, Role: ai.RoleUser, Content: req.Message, CreatedAt: now},
			&Message{SessionID: sess.ID, Role: ai.RoleAssistant, Content: reply, CreatedAt: now},
		)
	})
	g.Go(func() error {
		return s.repo.UpdateSessionAfterTurn(gctx, sess.ID, count, req.Lang, now)
	})
	if err := g.Wait(); err != nil {
		return 0, internalErr("persist turn", err)
	}
	return count, nil
}

// hasLead treats a failed lookup as an existing lead so the form is not shown.
func (s *Service) hasLead(ctx context.Context, sessionID string) bool {
	l, err := s.repo.GetLeadBySession(ctx, sessionID)
	if err != nil {
		s.log.Warn("lead lookup failed", "session_id", sessionID, "err", err)
		return true
	}
	return l != nil
}

func (s *Service) meter(kind string, sess *Session, provider string, out ai.Completion) {
	s.usage.Record(context.Background(), usage.Event{
		Kind:             kind,
		BotID:            sess.BotID,
		SessionID:        sess.ID,
		Provider:         provider,
		Model:            out.Model,
		PromptTokens:     out.Usage.PromptTokens,
		CompletionTokens: out.Usage.CompletionTokens,
		At:               s.now(),
	})
}

func (s *Service) degraded(branch, sessionID string, err error) {
	s.log.Warn("context branch degraded", "branch", branch, "session_id", sessionID, "err", err)
}

// Transcript returns the session's messages oldest first, marker rows included.
func (s *Service) Transcript(ctx context.Context, sessionID, botID string, limit int) ([]Message, error) {
	if limit <= 0 || limit > 200 {
		limit = 100
	}
	if _, err := s.ValidateSession(ctx, sessionID, botID); err != nil {
		return nil, err
	}
	msgs, err := s.repo.ListMessages(ctx, sessionID, limit)
	if err != nil {
		return nil, internalErr("list messages", err)
	}
	return msgs, nil
}
