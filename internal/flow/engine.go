package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/BTreeMap/SleepAdvisor/internal/models"
	"github.com/BTreeMap/SleepAdvisor/internal/store"
)

// DefaultPacing is the delay before the first question and before analysis.
// Free-text answers wait half of it.
const DefaultPacing = time.Second

// Engine drives the questionnaire for every user.
type Engine struct {
	catalog   Catalog
	sessions  *store.SessionStore
	results   store.ResultStore
	predictor Predictor
	messenger Messenger
	enhancer  AdviceEnhancer
	pacing    time.Duration
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithPacing sets the perceived-pacing delay; zero disables it.
func WithPacing(d time.Duration) EngineOption {
	return func(e *Engine) { e.pacing = d }
}

// WithAdviceEnhancer appends generated text to the advice.
func WithAdviceEnhancer(enh AdviceEnhancer) EngineOption {
	return func(e *Engine) { e.enhancer = enh }
}

// WithCatalog replaces the default question catalog.
func WithCatalog(c Catalog) EngineOption {
	return func(e *Engine) { e.catalog = c }
}

// NewEngine creates a conversation engine over the given collaborators.
func NewEngine(sessions *store.SessionStore, results store.ResultStore, predictor Predictor, messenger Messenger, opts ...EngineOption) *Engine {
	e := &Engine{
		catalog:   DefaultCatalog(),
		sessions:  sessions,
		results:   results,
		predictor: predictor,
		messenger: messenger,
		pacing:    DefaultPacing,
	}
	for _, opt := range opts {
		opt(e)
	}
	slog.Debug("Engine created", "questions", e.catalog.Len(), "pacing", e.pacing, "enhancer", e.enhancer != nil)
	return e
}

// State reports where the user currently is in the conversation.
func (e *Engine) State(userID string) ConversationState {
	sess, ok := e.sessions.Get(userID)
	switch {
	case !ok:
		return StateNoSession
	case sess.Pending != nil:
		return StateAwaitingConfirmation
	default:
		return StateAwaitingAnswer
	}
}

// Welcome sends the command menu.
func (e *Engine) Welcome(ctx context.Context, userID string) error {
	_, err := e.messenger.SendMessage(ctx, userID, msgWelcome)
	return err
}

// Help sends the cached result of the user or generic tips.
func (e *Engine) Help(ctx context.Context, userID string) error {
	res, err := e.results.GetResult(ctx, userID)
	if err != nil {
		slog.Error("Engine.Help: result lookup failed", "user_id", userID, "error", err)
	}
	text := msgGenericTips
	if res != nil {
		text = fmt.Sprintf(msgCachedResultFmt, res.LabelName, res.Advice)
	}
	_, err = e.messenger.SendMessage(ctx, userID, text)
	return err
}

// Begin starts a new questionnaire, discarding any previous session of the user.
func (e *Engine) Begin(ctx context.Context, userID string) error {
	e.sessions.Put(models.NewSession(userID))
	sess, release, _ := e.sessions.Checkout(userID)
	defer release()
	slog.Info("Engine.Begin: session created", "user_id", userID)

	handle, err := e.messenger.SendMessage(ctx, userID, msgStarting)
	if err != nil {
		return fmt.Errorf("failed to send start message: %w", err)
	}
	sess.LastMessage = handle
	if err := e.pause(ctx, e.pacing); err != nil {
		return err
	}
	return e.ask(ctx, sess)
}

// HandleText processes a free-text message.
func (e *Engine) HandleText(ctx context.Context, userID, text string) error {
	sess, release, ok := e.sessions.Checkout(userID)
	if !ok {
		return e.expired(ctx, userID, "")
	}
	defer release()

	if sess.Pending != nil {
		yes, recognised := parseYesNo(text)
		if !recognised {
			_, err := e.messenger.SendMessage(ctx, userID, msgConfirmYesNo)
			return err
		}
		return e.resolveConfirmation(ctx, sess, yes)
	}

	rq, err := e.catalog.Render(sess.Step, sess.Answers)
	if err != nil {
		return e.abandon(ctx, sess, msgGenericError, err)
	}

	if rq.Kind == models.InputSingleChoice {
		c, matched := matchChoice(text, rq.Choices)
		if !matched {
			_, err := e.messenger.SendChoices(ctx, userID, msgPickOption, rq.Choices)
			return err
		}
		return e.applyChoice(ctx, sess, rq, c.Data)
	}

	if err := e.pause(ctx, e.pacing/2); err != nil {
		return err
	}

	value, err := Normalize(rq.Key, text)
	if err != nil {
		slog.Debug("Engine.HandleText: parse failed", "user_id", userID, "field", rq.Key, "error", err)
		_, sendErr := e.messenger.SendMessage(ctx, userID, msgInvalidInput)
		return sendErr
	}

	out := ApplyRule(rq.Key, value, sess.Retries[rq.Key])
	if out.Note != "" {
		if _, err := e.messenger.SendMessage(ctx, userID, out.Note); err != nil {
			return err
		}
	}

	switch out.Verdict {
	case VerdictReject:
		sess.Retries[rq.Key]++
		slog.Debug("Engine.HandleText: value rejected", "user_id", userID, "field", rq.Key, "value", value, "rejections", sess.Retries[rq.Key])
		return nil
	case VerdictConfirm:
		sess.Pending = &models.PendingConfirmation{Field: rq.Key, Value: out.Value}
		handle, err := e.messenger.SendChoices(ctx, userID, msgConfirmAge, confirmChoices())
		if err != nil {
			return err
		}
		sess.LastMessage = handle
		slog.Debug("Engine.HandleText: awaiting confirmation", "user_id", userID, "field", rq.Key, "value", out.Value)
		return nil
	default:
		return e.commit(ctx, sess, rq.Key, out.Value)
	}
}

// HandleChoice processes a button selection carrying callback data.
func (e *Engine) HandleChoice(ctx context.Context, userID, data, callbackID string) error {
	sess, release, ok := e.sessions.Checkout(userID)
	if !ok {
		return e.expired(ctx, userID, callbackID)
	}
	defer release()

	if strings.HasPrefix(data, confirmPrefix) {
		if sess.Pending == nil {
			return e.messenger.AnswerCallback(ctx, userID, callbackID, msgSessionExpired)
		}
		if data != confirmYes && data != confirmNo {
			slog.Debug("Engine.HandleChoice: unknown confirmation data", "user_id", userID, "data", data)
			return e.messenger.AnswerCallback(ctx, userID, callbackID, msgStaleButton)
		}
		if err := e.messenger.AnswerCallback(ctx, userID, callbackID, ""); err != nil {
			slog.Warn("Engine.HandleChoice: callback ack failed", "user_id", userID, "error", err)
		}
		return e.resolveConfirmation(ctx, sess, data == confirmYes)
	}

	if sess.Pending != nil || sess.Step >= e.catalog.Len() {
		return e.messenger.AnswerCallback(ctx, userID, callbackID, msgStaleButton)
	}
	rq, err := e.catalog.Render(sess.Step, sess.Answers)
	if err != nil {
		return e.abandon(ctx, sess, msgGenericError, err)
	}
	if rq.Kind != models.InputSingleChoice || !offered(rq.Choices, data) {
		slog.Debug("Engine.HandleChoice: stale or foreign button", "user_id", userID, "data", data, "step", sess.Step)
		return e.messenger.AnswerCallback(ctx, userID, callbackID, msgStaleButton)
	}
	if err := e.messenger.AnswerCallback(ctx, userID, callbackID, ""); err != nil {
		slog.Warn("Engine.HandleChoice: callback ack failed", "user_id", userID, "error", err)
	}
	return e.applyChoice(ctx, sess, rq, data)
}

func (e *Engine) applyChoice(ctx context.Context, sess *models.Session, rq RenderedQuestion, data string) error {
	_, raw, found := strings.Cut(data, ":")
	value, err := strconv.Atoi(raw)
	if !found || err != nil {
		return e.abandon(ctx, sess, msgGenericError, fmt.Errorf("%w: bad callback data %q", models.ErrParse, data))
	}
	e.clearControls(ctx, sess)
	return e.commit(ctx, sess, rq.Key, float64(value))
}

func (e *Engine) resolveConfirmation(ctx context.Context, sess *models.Session, yes bool) error {
	pending := sess.Pending
	sess.Pending = nil
	e.clearControls(ctx, sess)

	if !yes {
		slog.Debug("Engine: confirmation declined", "user_id", sess.UserID, "field", pending.Field)
		if _, err := e.messenger.SendMessage(ctx, sess.UserID, msgConfirmRejected); err != nil {
			return err
		}
		return e.ask(ctx, sess)
	}
	if _, err := e.messenger.SendMessage(ctx, sess.UserID, fmt.Sprintf(msgConfirmAcceptFmt, pending.Value)); err != nil {
		return err
	}
	return e.commit(ctx, sess, pending.Field, pending.Value)
}

// commit records an accepted answer and moves to the next step.
func (e *Engine) commit(ctx context.Context, sess *models.Session, key models.FieldKey, value float64) error {
	sess.Answers[key] = value
	delete(sess.Retries, key)
	sess.Step++
	slog.Debug("Engine: answer committed", "user_id", sess.UserID, "field", key, "value", value, "step", sess.Step)
	return e.ask(ctx, sess)
}

// ask renders the current step or, past the last one, runs the prediction.
func (e *Engine) ask(ctx context.Context, sess *models.Session) error {
	if sess.Step >= e.catalog.Len() {
		return e.finish(ctx, sess)
	}
	rq, err := e.catalog.Render(sess.Step, sess.Answers)
	if err != nil {
		return e.abandon(ctx, sess, msgGenericError, err)
	}

	var handle models.MessageHandle
	if rq.Kind == models.InputSingleChoice {
		if len(rq.Choices) == 0 {
			slog.Warn("Engine.ask: choice question without options", "user_id", sess.UserID, "field", rq.Key)
			return e.abandon(ctx, sess, msgNoOptions, nil)
		}
		handle, err = e.messenger.SendChoices(ctx, sess.UserID, rq.Prompt, rq.Choices)
	} else {
		handle, err = e.messenger.SendMessage(ctx, sess.UserID, rq.Prompt)
	}
	if err != nil {
		return fmt.Errorf("failed to send question %s: %w", rq.Key, err)
	}
	sess.LastMessage = handle
	return nil
}

func (e *Engine) finish(ctx context.Context, sess *models.Session) error {
	userID := sess.UserID
	// Past the last step the session either predicts or is dropped; it is
	// never left waiting for an answer that has no question.
	if _, err := e.messenger.SendMessage(ctx, userID, msgAnalysing); err != nil {
		e.sessions.Delete(userID)
		slog.Warn("Engine.finish: session dropped, analysis notice not sent", "user_id", userID, "error", err)
		return fmt.Errorf("failed to send analysis notice: %w", err)
	}
	if err := e.pause(ctx, e.pacing); err != nil {
		e.sessions.Delete(userID)
		slog.Warn("Engine.finish: session dropped, interrupted before prediction", "user_id", userID, "error", err)
		return err
	}

	req := BuildRequest(sess.Answers)
	if err := ValidateRequest(req); err != nil {
		return e.abandon(ctx, sess, msgInvalidData, err)
	}

	resp, err := e.predictor.Predict(ctx, req)
	if err != nil {
		return e.abandon(ctx, sess, upstreamMessage(err), err)
	}
	if resp.Label == nil || !models.IsValidLabel(*resp.Label) {
		return e.abandon(ctx, sess, msgUpstreamMalformed, models.ErrUpstreamMalformed)
	}
	label := *resp.Label

	advice := GenerateAdvice(sess.Answers, label)
	if e.enhancer != nil {
		extra, err := e.enhancer.Enhance(ctx, sess.Answers, label, advice)
		if err != nil {
			slog.Warn("Engine.finish: advice enhancement failed", "user_id", userID, "error", err)
		} else if extra = strings.TrimSpace(extra); extra != "" {
			advice += "\n\n" + extra
		}
	}

	result := models.Result{Label: label, LabelName: LabelText(label), Advice: advice, CreatedAt: time.Now()}
	if err := e.results.SaveResult(ctx, userID, result); err != nil {
		slog.Error("Engine.finish: failed to cache result", "user_id", userID, "error", err)
	}
	e.sessions.Delete(userID)
	slog.Info("Engine.finish: questionnaire completed", "user_id", userID, "label", label)

	_, err = e.messenger.SendMessage(ctx, userID, fmt.Sprintf(msgPredictionFmt, result.LabelName, advice))
	return err
}

// abandon deletes the session and tells the user why.
func (e *Engine) abandon(ctx context.Context, sess *models.Session, userMsg string, cause error) error {
	e.sessions.Delete(sess.UserID)
	slog.Warn("Engine: session abandoned", "user_id", sess.UserID, "step", sess.Step, "error", cause)
	_, err := e.messenger.SendMessage(ctx, sess.UserID, userMsg)
	return err
}

// expired answers an interaction that has no session; nothing is mutated.
func (e *Engine) expired(ctx context.Context, userID, callbackID string) error {
	slog.Debug("Engine: no session for interaction", "user_id", userID, "callback", callbackID != "")
	if callbackID != "" {
		if err := e.messenger.AnswerCallback(ctx, userID, callbackID, msgSessionExpired); err != nil {
			slog.Warn("Engine: callback ack failed", "user_id", userID, "error", err)
		}
	}
	_, err := e.messenger.SendMessage(ctx, userID, msgSessionExpired)
	return err
}

func (e *Engine) clearControls(ctx context.Context, sess *models.Session) {
	if sess.LastMessage == "" {
		return
	}
	if err := e.messenger.DeleteMessage(ctx, sess.UserID, sess.LastMessage); err != nil {
		slog.Debug("Engine: failed to delete controls", "user_id", sess.UserID, "error", err)
	}
	sess.LastMessage = ""
}

func (e *Engine) pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func upstreamMessage(err error) string {
	var statusErr *models.UpstreamStatusError
	switch {
	case errors.Is(err, models.ErrUpstreamTimeout):
		return msgUpstreamTimeout
	case errors.As(err, &statusErr):
		return fmt.Sprintf(msgUpstreamStatusFmt, statusErr.StatusCode)
	case errors.Is(err, models.ErrUpstreamMalformed):
		return msgUpstreamMalformed
	default:
		return msgUpstreamFailed
	}
}

func confirmChoices() []models.Choice {
	return []models.Choice{{Label: "Yes", Data: confirmYes}, {Label: "No", Data: confirmNo}}
}

func offered(choices []models.Choice, data string) bool {
	for _, c := range choices {
		if c.Data == data {
			return true
		}
	}
	return false
}

func parseYesNo(text string) (yes, ok bool) {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "yes", "y", "1", "да", "д":
		return true, true
	case "no", "n", "2", "нет", "н":
		return false, true
	}
	return false, false
}
