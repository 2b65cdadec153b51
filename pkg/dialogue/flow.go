package dialogue

import (
	"context"
	"encoding/json"
	"errors"
	"unicode/utf8"

	"tarotbot/pkg/llmerrors"
	"tarotbot/pkg/persistence"
	"tarotbot/pkg/prompts"
	"tarotbot/pkg/readinglog"
	"tarotbot/pkg/selector"
	"tarotbot/pkg/session"
	"tarotbot/pkg/spreads"
	"tarotbot/pkg/validate"
)

// Reading-log stage labels for failures outside the model session.
const (
	stageCredits   = "credits"
	stageSelection = "card_selection"
	stageSession   = "session"
	stageInterpret = "interpretation"
	stageDelivery  = "delivery"
	stageCancelled = "cancelled"
)

var errCancelled = errors.New("reading cancelled by user")

func (b *Bot) onSpread(ctx context.Context, chatID int64, sess *Session, spread spreads.Spread) {
	b.abandon(ctx, chatID, sess)
	sess.Spread = spread
	sess.StartedAt = b.cfg.Now()

	user, err := b.cfg.Users.GetUser(ctx, chatID)
	switch {
	case err == nil:
		sess.Name = user.Name
		sess.Birthdate = user.Birthdate
		sess.Age = user.Age(b.cfg.Now())
		sess.State = StateWaitingMagicNumber
		b.send(ctx, chatID, returningUserText(sess.Name, spread.Name, sess.Age))
	case errors.Is(err, persistence.ErrNotFound):
		sess.State = StateWaitingName
		b.send(ctx, chatID, newUserText(spread.Name))
	default:
		b.logger.Error("Failed to load user %d: %v", chatID, err)
		sess.Reset()
		b.sendMenu(ctx, chatID, textReadingFailed, mainMenu())
	}
}

func (b *Bot) onName(ctx context.Context, chatID int64, sess *Session, text string) {
	name, err := validate.Name(text)
	if err != nil {
		b.send(ctx, chatID, retryText(validate.Message(err), "👤 Попробуйте ещё раз. Как вас зовут?"))
		return
	}
	sess.Name = name
	sess.State = StateWaitingBirthdate
	b.send(ctx, chatID, nameAcceptedText(name))
}

func (b *Bot) onBirthdate(ctx context.Context, chatID int64, sess *Session, text string) {
	birth, age, err := validate.Birthdate(text, b.cfg.Now())
	if err != nil {
		b.send(ctx, chatID, retryText(validate.Message(err), "📅 Попробуйте ещё раз. "+textAskBirthdate))
		return
	}

	user := persistence.User{ChatID: chatID, Name: sess.Name, Birthdate: birth}
	if err := b.cfg.Users.SaveUser(ctx, user, b.cfg.InitialCredits); err != nil {
		b.logger.Error("Failed to save user %d: %v", chatID, err)
		sess.Reset()
		b.sendMenu(ctx, chatID, textReadingFailed, mainMenu())
		return
	}
	b.logger.Info("Registered user %d", chatID)

	sess.Birthdate = birth
	sess.Age = age
	sess.State = StateWaitingMagicNumber
	b.send(ctx, chatID, birthdateAcceptedText(age))
}

func (b *Bot) onMagicNumber(ctx context.Context, chatID int64, sess *Session, text string) {
	n, err := validate.MagicNumber(text)
	if err != nil {
		b.send(ctx, chatID, retryText(validate.Message(err), "🔮 Попробуйте ещё раз. "+textAskMagic))
		return
	}
	sess.MagicNumber = n

	questions := sess.Spread.Preliminary
	if len(questions) == 0 {
		b.send(ctx, chatID, "✅ Магическое число принято!\n\n"+textCreating)
		b.startReading(ctx, chatID, sess)
		return
	}
	sess.State = StateWaitingPreliminaryAnswers
	first := questions[0]
	b.send(ctx, chatID, magicAcceptedText(n, sess.Spread.Name, sess.Spread.EstimatedTime, first.Text, first.Hint))
}

func (b *Bot) onPreliminaryAnswer(ctx context.Context, chatID int64, sess *Session, text string) {
	sess.PreliminaryAnswers = append(sess.PreliminaryAnswers, text)

	questions := sess.Spread.Preliminary
	if k := len(sess.PreliminaryAnswers); k < len(questions) {
		next := questions[k]
		b.send(ctx, chatID, preliminaryQuestionText(k+1, len(questions), next.Text, next.Hint))
		return
	}
	b.send(ctx, chatID, textAnswersDone)
	b.startReading(ctx, chatID, sess)
}

func (b *Bot) onLLMAnswer(ctx context.Context, chatID int64, sess *Session, text string) {
	sess.LLMAnswers = append(sess.LLMAnswers, text)
	if k := len(sess.LLMAnswers); k < len(sess.LLMQuestions) {
		b.send(ctx, chatID, nextLLMQuestionText(k+1, len(sess.LLMQuestions), sess.LLMQuestions[k]))
		return
	}
	b.finish(ctx, chatID, sess)
}

// startReading debits a credit, draws the cards, opens the reading log and runs
// the first half of the interpretation.
func (b *Bot) startReading(ctx context.Context, chatID int64, sess *Session) {
	if b.cfg.CreditsEnabled {
		left, err := b.cfg.Users.DebitCredit(ctx, chatID)
		if errors.Is(err, persistence.ErrNoCredits) {
			b.logger.Info("Chat %d has no credits left", chatID)
			sess.Reset()
			b.sendMenu(ctx, chatID, textNoCredits, mainMenu())
			return
		}
		if err != nil {
			b.fail(ctx, chatID, sess, stageCredits, err, textReadingFailed)
			return
		}
		sess.Debited = true
		b.logger.Debug("Chat %d debited, %d credits left", chatID, left)
	}

	sess.progress = newProgress(b.cfg.Sender, chatID, b.logger)
	sess.progress.Start(ctx)

	req := selector.Request{
		Count:       sess.Spread.CardCount,
		MagicNumber: sess.MagicNumber,
		Nonce:       b.cfg.Now().UnixNano(),
	}
	if sess.Age > 0 {
		age := sess.Age
		req.Age = &age
	}
	drawn, err := selector.Select(b.cfg.Deck, req)
	if err != nil {
		b.fail(ctx, chatID, sess, stageSelection, err, textReadingFailed)
		return
	}
	sess.Cards = drawn.Cards
	sess.progress.Set(ctx, 0)

	if b.cfg.Renderer != nil {
		img, err := b.cfg.Renderer.Render(sess.Spread, sess.Cards)
		if err != nil {
			b.logger.Warn("Spread image unavailable for %s, sending text only: %v", sess.Spread.Key, err)
		}
		sess.Image = img
	}

	sess.ReadingID = b.openReading(chatID, sess, drawn)

	reporter := &stageReporter{progress: sess.progress}
	opts := b.cfg.Generation
	opts.OnStage = reporter.report
	interp, err := session.New(b.cfg.Strategy, b.cfg.Client, b.cfg.Prompts, opts)
	if err != nil {
		b.fail(ctx, chatID, sess, stageSession, err, textReadingFailed)
		return
	}
	sess.Interpreter = interp
	sess.reporter = reporter

	sess.progress.Set(ctx, 25)
	reporter.ctx = ctx
	questions, err := interp.Begin(ctx, session.Input{
		Now:                  b.cfg.Now(),
		Name:                 sess.Name,
		Age:                  sess.Age,
		Spread:               sess.Spread,
		Cards:                sess.Cards,
		PreliminaryQuestions: preliminaryTexts(sess.Spread),
		PreliminaryAnswers:   sess.PreliminaryAnswers,
	})
	reporter.ctx = nil
	if err != nil {
		b.fail(ctx, chatID, sess, stageInterpret, err, ApologyText(err))
		return
	}

	if len(questions) == 0 {
		b.finish(ctx, chatID, sess)
		return
	}
	sess.LLMQuestions = questions
	sess.State = StateWaitingLLMQuestions
	b.send(ctx, chatID, firstLLMQuestionText(len(questions), questions[0]))
}

// finish runs the rest of the interpretation and delivers it.
func (b *Bot) finish(ctx context.Context, chatID int64, sess *Session) {
	sess.State = StateProcessingInterpretation
	if len(sess.LLMQuestions) > 0 {
		sess.progress.Recreate(ctx)
	}

	sess.reporter.ctx = ctx
	out, err := sess.Interpreter.Finish(ctx, sess.LLMAnswers)
	sess.reporter.ctx = nil
	if err != nil {
		b.fail(ctx, chatID, sess, stageInterpret, err, ApologyText(err))
		return
	}
	sess.progress.Set(ctx, 100)

	if err := b.deliver(ctx, chatID, sess, out.Text); err != nil {
		b.fail(ctx, chatID, sess, stageDelivery, err, textDeliverFailed)
		return
	}
	sess.progress.Delete(ctx)

	now := b.cfg.Now()
	snapshot, snapErr := sess.Interpreter.Snapshot()
	if snapErr != nil {
		b.logger.Warn("Failed to snapshot conversation for chat %d: %v", chatID, snapErr)
	}
	b.updateReading(sess.ReadingID, func(r *readinglog.Record) {
		r.Questions.LLMGenerated = qaPairs(sess.LLMQuestions, sess.LLMAnswers)
		if snapErr == nil && json.Valid(snapshot) {
			r.LLM.Conversation = json.RawMessage(snapshot)
		}
		r.Complete(out.Text, out.FellBack, now)
	})
	if err := b.cfg.Users.TouchLastSpread(ctx, chatID, sess.Spread.Key); err != nil {
		b.logger.Warn("Failed to record last spread for chat %d: %v", chatID, err)
	}

	outcome := OutcomeCompleted
	if out.FellBack {
		outcome = OutcomeFallback
	}
	b.observe(sess.Spread.Key, outcome)
	b.logger.Info("Delivered %s reading to chat %d (%d chars, fallback=%t)",
		sess.Spread.Key, chatID, utf8.RuneCountInString(out.Text), out.FellBack)

	*sess = Session{State: StateWaitingFeedback, ReadingID: sess.ReadingID, Spread: sess.Spread}
	b.sendMenu(ctx, chatID, textFeedbackPrompt, ratingKeyboard())
}

// deliver sends the spread image and the interpretation. The whole reading goes
// into the photo caption when it fits.
func (b *Bot) deliver(ctx context.Context, chatID int64, sess *Session, text string) error {
	cards := "🎴 " + CardsDescription(sess.Cards)

	if len(sess.Image) > 0 {
		full := cards + "\n" + interpretationHeading + text
		if utf8.RuneCountInString(full) <= b.cfg.MaxCaptionLength {
			_, err := b.cfg.Sender.SendPhoto(ctx, chatID, sess.Image, full)
			if err == nil {
				return nil
			}
			b.logger.Warn("Failed to send spread photo to chat %d, sending text: %v", chatID, err)
			return b.sendChunks(ctx, chatID, cards+"\n"+interpretationHeading+"\n"+text)
		}
		if _, err := b.cfg.Sender.SendPhoto(ctx, chatID, sess.Image, cards); err != nil {
			b.logger.Warn("Failed to send spread photo to chat %d, sending text: %v", chatID, err)
			return b.sendChunks(ctx, chatID, cards+"\n"+interpretationHeading+"\n"+text)
		}
		return b.sendChunks(ctx, chatID, interpretationHeading+"\n"+text)
	}
	return b.sendChunks(ctx, chatID, cards+"\n"+interpretationHeading+"\n"+text)
}

func (b *Bot) sendChunks(ctx context.Context, chatID int64, text string) error {
	for _, part := range SplitMessage(text, b.cfg.MaxMessageLength) {
		if _, err := b.cfg.Sender.SendText(ctx, chatID, part); err != nil {
			return err
		}
	}
	return nil
}

// fail aborts the reading and tells the user, unless the reading was cancelled.
func (b *Bot) fail(ctx context.Context, chatID int64, sess *Session, stage string, err error, userText string) {
	cancelled := ctx.Err() != nil
	cleanup := context.WithoutCancel(ctx)

	outcome := OutcomeError
	if cancelled {
		outcome = OutcomeCancelled
		b.logger.Info("Reading for chat %d cancelled at %s", chatID, stage)
	} else {
		b.logger.Error("Reading for chat %d failed at %s (%s): %v", chatID, stage, llmerrors.Classify(err), err)
	}
	b.closeReading(cleanup, chatID, sess, stage, err, outcome)
	sess.Reset()

	if !cancelled {
		b.sendMenu(cleanup, chatID, userText, mainMenu())
	}
}

// abandon drops whatever the chat was doing. A reading that was started but not
// delivered is closed as cancelled.
func (b *Bot) abandon(ctx context.Context, chatID int64, sess *Session) {
	if sess.Debited || sess.progress != nil {
		b.closeReading(context.WithoutCancel(ctx), chatID, sess, stageCancelled, errCancelled, OutcomeCancelled)
	}
	sess.Reset()
}

func (b *Bot) closeReading(ctx context.Context, chatID int64, sess *Session, stage string, err error, outcome string) {
	if sess.progress != nil {
		sess.progress.Delete(ctx)
	}
	if sess.Debited {
		if rerr := b.cfg.Users.RefundCredit(ctx, chatID); rerr != nil {
			b.logger.Error("Failed to refund credit for chat %d: %v", chatID, rerr)
		}
		sess.Debited = false
	}
	now := b.cfg.Now()
	b.updateReading(sess.ReadingID, func(r *readinglog.Record) {
		r.Questions.LLMGenerated = qaPairs(sess.LLMQuestions, sess.LLMAnswers)
		r.Fail(stage, err, now)
	})
	if sess.Spread.Key != "" {
		b.observe(sess.Spread.Key, outcome)
	}
}

// openReading creates the reading log entry. A failure is logged and the reading
// goes on unlogged.
func (b *Bot) openReading(chatID int64, sess *Session, drawn selector.Result) string {
	rec := &readinglog.Record{
		Metadata: readinglog.Metadata{ChatID: chatID},
		User: readinglog.User{
			Name:      sess.Name,
			Birthdate: validate.FormatISODate(sess.Birthdate),
			Age:       sess.Age,
		},
		Spread: readinglog.Spread{
			Type:        sess.Spread.Key,
			Name:        sess.Spread.Name,
			Cards:       drawn.Names(),
			Positions:   sess.Spread.Positions,
			Seed:        drawn.Seed,
			MagicNumber: sess.MagicNumber,
			AgeUsed:     drawn.AgeUsed,
		},
		Questions: readinglog.Questions{
			Preliminary: qaPairs(preliminaryTexts(sess.Spread), sess.PreliminaryAnswers),
		},
	}
	model := b.cfg.Generation.Model
	if model == "" {
		model = b.cfg.Client.ModelName()
	}
	rec.StartProcessing(model, b.cfg.Strategy, b.cfg.Now())
	for _, t := range promptsFor(b.cfg.Strategy, sess.Spread.Key) {
		rec.UsePrompt(string(t))
	}

	id, err := b.cfg.Readings.Create(rec)
	if err != nil {
		b.logger.Warn("Failed to create reading log for chat %d: %v", chatID, err)
		return ""
	}
	return id
}

func (b *Bot) updateReading(id string, fn func(*readinglog.Record)) {
	if id == "" {
		return
	}
	err := b.cfg.Readings.Update(id, func(r *readinglog.Record) error {
		fn(r)
		return nil
	})
	if err != nil {
		b.logger.Warn("Failed to update reading %s: %v", id, err)
	}
}

func (b *Bot) observe(spread, outcome string) {
	if b.cfg.Observer != nil {
		b.cfg.Observer.ObserveReading(spread, outcome)
	}
}

// stageReporter moves the progress bar as the interpretation completes stages.
// ctx is the context of the event currently running the interpreter.
type stageReporter struct {
	ctx      context.Context
	progress *Progress
}

func (r *stageReporter) report(stage session.Stage) {
	if r.ctx == nil {
		return
	}
	switch stage {
	case session.StageContextAnalysis:
		r.progress.Set(r.ctx, 50)
	case session.StageSynthesis:
		r.progress.Set(r.ctx, 75)
	case session.StageFinalResponse:
		r.progress.Set(r.ctx, 100)
	}
}

func preliminaryTexts(s spreads.Spread) []string {
	out := make([]string, len(s.Preliminary))
	for i, q := range s.Preliminary {
		out[i] = q.Text
	}
	return out
}

func qaPairs(questions, answers []string) []readinglog.QA {
	pairs := prompts.Pair(questions, answers)
	out := make([]readinglog.QA, len(pairs))
	for i, p := range pairs {
		out[i] = readinglog.QA{Question: p.Question, Answer: p.Answer}
	}
	return out
}

func promptsFor(strategy, spreadKey string) []prompts.Template {
	if strategy == session.StrategySingle {
		return []prompts.Template{prompts.PersonaTemplate, prompts.SpreadTemplate(spreadKey), prompts.SingleCallTemplate}
	}
	return []prompts.Template{
		prompts.PersonaTemplate,
		prompts.SpreadTemplate(spreadKey),
		prompts.QuestionsTemplate,
		prompts.ContextAnalysisTemplate,
		prompts.SynthesisTemplate,
		prompts.FinalResponseTemplate,
	}
}
