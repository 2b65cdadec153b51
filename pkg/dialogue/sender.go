package dialogue

import (
	"context"
	"fmt"

	"tarotbot/pkg/spreads"
)

// Button is an inline keyboard button; Data comes back in HandleButton.
type Button struct {
	Text string
	Data string
}

// Keyboard is rows of buttons.
type Keyboard [][]Button

// Sender is the outgoing side of the chat transport. Message ids are transport ids.
type Sender interface {
	SendText(ctx context.Context, chatID int64, text string) (int, error)
	SendMenu(ctx context.Context, chatID int64, text string, kb Keyboard) (int, error)
	SendPhoto(ctx context.Context, chatID int64, png []byte, caption string) (int, error)
	EditText(ctx context.Context, chatID int64, messageID int, text string, kb Keyboard) error
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error
}

// Callback data.
const (
	CallbackMainMenu        = "main_menu"
	CallbackBackToMain      = "back_to_main"
	CallbackSpreadsList     = "spreads_list"
	CallbackHelp            = "help"
	CallbackFeedbackComment = "feedback_comment"
	CallbackFeedbackCancel  = "feedback_cancel"
	ratePrefix              = "rate_"
)

var ratingStars = [...]string{"", "⭐", "⭐⭐", "⭐⭐⭐", "⭐⭐⭐⭐", "⭐⭐⭐⭐⭐"}

func mainMenu() Keyboard {
	return Keyboard{
		{{Text: "🎯 Сделать расклад", Data: CallbackSpreadsList}},
		{{Text: "❓ Помощь", Data: CallbackHelp}},
	}
}

func spreadsMenu(all []spreads.Spread) Keyboard {
	kb := make(Keyboard, 0, len(all)+1)
	for _, s := range all {
		kb = append(kb, []Button{{Text: s.Label(), Data: s.Callback}})
	}
	return append(kb, []Button{{Text: "◀️ Назад", Data: CallbackBackToMain}})
}

func backButton(data string) Keyboard {
	return Keyboard{{{Text: "◀️ Назад", Data: data}}}
}

func ratingKeyboard() Keyboard {
	row := func(from, to int) []Button {
		var b []Button
		for i := from; i <= to; i++ {
			b = append(b, Button{Text: ratingStars[i], Data: fmt.Sprintf("%s%d", ratePrefix, i)})
		}
		return b
	}
	return Keyboard{
		row(1, 3),
		row(4, 5),
		{
			{Text: "💬 Оставить комментарий", Data: CallbackFeedbackComment},
			{Text: "🔄 Новый расклад", Data: CallbackSpreadsList},
		},
		{{Text: "🏠 Главное меню", Data: CallbackMainMenu}},
	}
}

func afterRatingKeyboard() Keyboard {
	return Keyboard{
		{{Text: "💬 Оставить комментарий", Data: CallbackFeedbackComment}},
		{{Text: "🔄 Новый расклад", Data: CallbackSpreadsList}},
		{{Text: "🏠 Главное меню", Data: CallbackMainMenu}},
	}
}

func cancelCommentKeyboard() Keyboard {
	return Keyboard{{{Text: "❌ Отмена", Data: CallbackFeedbackCancel}}}
}
