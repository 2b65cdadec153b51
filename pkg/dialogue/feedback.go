package dialogue

import (
	"context"
	"strconv"

	"tarotbot/pkg/readinglog"
)

const maxCommentLen = 2000

func (b *Bot) onRating(ctx context.Context, chatID int64, messageID int, sess *Session, value string) {
	rating, err := strconv.Atoi(value)
	if err != nil || rating < 1 || rating > 5 {
		b.send(ctx, chatID, textUnknown)
		return
	}

	if sess.ReadingID == "" {
		b.logger.Warn("Rating %d from chat %d without an open reading", rating, chatID)
	} else {
		now := b.cfg.Now()
		b.updateReading(sess.ReadingID, func(r *readinglog.Record) { r.Rate(rating, now) })
		b.logger.Info("Chat %d rated reading %s: %d", chatID, sess.ReadingID, rating)
	}
	if sess.State != StateWaitingComment {
		sess.State = StateWaitingFeedback
	}
	b.showMenu(ctx, chatID, messageID, ratingText(rating), afterRatingKeyboard())
}

func (b *Bot) onCommentRequest(ctx context.Context, chatID int64, messageID int, sess *Session) {
	if sess.State != StateWaitingFeedback && sess.State != StateWaitingComment {
		b.showMenu(ctx, chatID, messageID, textWelcome, mainMenu())
		return
	}
	sess.State = StateWaitingComment
	b.showMenu(ctx, chatID, messageID, textCommentRequest, cancelCommentKeyboard())
}

func (b *Bot) onComment(ctx context.Context, chatID int64, sess *Session, text string) {
	if runes := []rune(text); len(runes) > maxCommentLen {
		text = string(runes[:maxCommentLen])
	}
	now := b.cfg.Now()
	b.updateReading(sess.ReadingID, func(r *readinglog.Record) { r.Comment(text, now) })
	b.logger.Info("Chat %d left a comment on reading %s", chatID, sess.ReadingID)

	sess.Reset()
	b.sendMenu(ctx, chatID, textCommentThanks, mainMenu())
}
