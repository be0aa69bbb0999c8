// Package title generates short conversation titles in the background.
// One pending job per process, debounced, last-write-wins; failures
// always resolve to a fallback title and never surface to the user.
package title

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/emberchat/emberchat/internal/gateway"
	"github.com/emberchat/emberchat/internal/model"
	"github.com/emberchat/emberchat/pkg/logger"
	"github.com/emberchat/emberchat/pkg/metrics"
)

const (
	// RefreshThreshold is the number of assistant messages after which
	// a non-placeholder title is refreshed.
	RefreshThreshold = 3

	// contextLimit caps the conversation context sent for
	// summarization to its trailing characters.
	contextLimit = 1500

	// maxTitleWords caps a generated title.
	maxTitleWords = 7

	// fallbackWords is how many leading words of the first user
	// message a fallback title takes.
	fallbackWords = 4

	completeTimeout = 30 * time.Second
)

// Conversations is the slice of the store the scheduler needs.
type Conversations interface {
	Get(id string) (*model.Conversation, error)
	ActiveID() string
	UpdateTitle(id, title string) bool
	Preferences() model.Preferences
}

// Completer is the one-shot completion operation of the gateway.
type Completer interface {
	Complete(ctx context.Context, prompt, modelName string, cfg gateway.SamplingConfig) (string, error)
}

type job struct {
	conversationID string
	isNew          bool
	snapshot       []model.Message
}

// Scheduler is the debounced title generator. The pending job is a
// process-wide singleton replaced whole on every Schedule call.
type Scheduler struct {
	mu      sync.Mutex
	store   Conversations
	gateway Completer
	delay   time.Duration
	timer   *time.Timer
	pending *job
	logger  *logger.Logger
}

// NewScheduler creates a scheduler. A nil gateway is allowed; jobs
// then resolve straight to fallback titles.
func NewScheduler(store Conversations, gw Completer, delay time.Duration, log *logger.Logger) *Scheduler {
	if delay <= 0 {
		delay = 2 * time.Second
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Scheduler{
		store:   store,
		gateway: gw,
		delay:   delay,
		logger:  log,
	}
}

// Schedule arms (or re-arms) the title job for a conversation,
// overwriting any pending job. The conversation's messages are
// snapshotted now so a later turn cannot mutate the job under it.
func (s *Scheduler) Schedule(conversationID string, isNewConversation bool) {
	conv, err := s.store.Get(conversationID)
	if err != nil {
		return
	}
	snapshot := conv.Snapshot()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending = &job{
		conversationID: conversationID,
		isNew:          isNewConversation,
		snapshot:       snapshot,
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.delay, s.fire)
}

// Stop cancels any pending job.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.pending = nil
}

func (s *Scheduler) fire() {
	s.mu.Lock()
	j := s.pending
	s.pending = nil
	s.mu.Unlock()

	if j == nil {
		return
	}
	s.run(j)
}

func (s *Scheduler) run(j *job) {
	// Stale-guard: the conversation is gone, or the user moved on and
	// this was a periodic refresh rather than a first-title job.
	if _, err := s.store.Get(j.conversationID); err != nil {
		metrics.TitleJobsTotal.WithLabelValues("stale").Inc()
		return
	}
	if s.store.ActiveID() != j.conversationID && !j.isNew {
		metrics.TitleJobsTotal.WithLabelValues("stale").Inc()
		return
	}

	firstUser := firstUserMessage(j.snapshot)
	if firstUser == nil {
		s.store.UpdateTitle(j.conversationID, model.PlaceholderTitle)
		metrics.TitleJobsTotal.WithLabelValues("placeholder").Inc()
		return
	}

	if s.gateway == nil {
		s.store.UpdateTitle(j.conversationID, FallbackTitle(firstUser.Text))
		metrics.TitleJobsTotal.WithLabelValues("fallback").Inc()
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), completeTimeout)
	defer cancel()

	prefs := s.store.Preferences()
	raw, err := s.gateway.Complete(ctx, summaryPrompt(j.snapshot), prefs.SelectedModel, gateway.SamplingConfig{})
	if err != nil {
		// Title generation never surfaces an error.
		s.logger.Debugw("title generation failed, using fallback",
			"conversation_id", j.conversationID, "error", err)
		s.store.UpdateTitle(j.conversationID, FallbackTitle(firstUser.Text))
		metrics.TitleJobsTotal.WithLabelValues("fallback").Inc()
		return
	}

	title := CleanTitle(raw)
	if title == "" {
		title = FallbackTitle(firstUser.Text)
	}
	s.store.UpdateTitle(j.conversationID, title)
	metrics.TitleJobsTotal.WithLabelValues("generated").Inc()
}

func firstUserMessage(snapshot []model.Message) *model.Message {
	for i := range snapshot {
		if snapshot[i].Role == model.RoleUser && strings.TrimSpace(snapshot[i].Text) != "" {
			return &snapshot[i]
		}
	}
	return nil
}

// summaryPrompt builds the summarization prompt over the trailing
// portion of the conversation.
func summaryPrompt(snapshot []model.Message) string {
	var b strings.Builder
	for i := range snapshot {
		m := &snapshot[i]
		if m.IsWelcome() || m.Text == "" {
			continue
		}
		if m.Role == model.RoleUser {
			b.WriteString("User: ")
		} else {
			b.WriteString("Assistant: ")
		}
		b.WriteString(m.Text)
		b.WriteString("\n")
	}

	context := b.String()
	if len(context) > contextLimit {
		context = context[len(context)-contextLimit:]
	}

	return "Summarize this conversation in a very short title of at most " +
		"seven words. Respond with the title only, no quotes.\n\n" + context
}

// CleanTitle normalizes a model-generated title: trims whitespace and
// surrounding quotes, drops a leading "Title:" prefix, and caps the
// result at seven words with an ellipsis.
func CleanTitle(raw string) string {
	title := strings.TrimSpace(raw)
	title = strings.Trim(title, "\"'“”")
	if rest, ok := cutPrefixFold(title, "title:"); ok {
		title = strings.TrimSpace(rest)
	}
	title = strings.Trim(title, "\"'“”")

	words := strings.Fields(title)
	if len(words) > maxTitleWords {
		return strings.Join(words[:maxTitleWords], " ") + "..."
	}
	return strings.Join(words, " ")
}

// FallbackTitle derives a title from the leading words of the first
// user message. Deterministic; used whenever generation fails.
func FallbackTitle(firstUserText string) string {
	words := strings.Fields(strings.TrimSpace(firstUserText))
	if len(words) == 0 {
		return model.PlaceholderTitle
	}
	if len(words) > fallbackWords {
		return strings.Join(words[:fallbackWords], " ") + "..."
	}
	return strings.Join(words, " ")
}

func cutPrefixFold(s, prefix string) (string, bool) {
	if len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix) {
		return s[len(prefix):], true
	}
	return s, false
}
