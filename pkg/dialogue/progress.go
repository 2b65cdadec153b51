package dialogue

import (
	"context"
	"fmt"
	"strings"

	"tarotbot/pkg/logx"
)

const progressCells = 10

var progressStages = []struct {
	text    string
	percent int
}{
	{"🎴 Раскладываю карты...", 0},
	{"📖 Читаю значения карт...", 25},
	{"🧠 Анализирую вашу ситуацию...", 50},
	{"✨ Формирую интерпретацию...", 75},
	{"🔮 Готово!", 100},
}

const progressPreparing = "🔮 Подготавливаю расклад..."

// RenderProgress renders the progress message for percent with a star bar.
func RenderProgress(percent int, stage string) string {
	percent = max(0, min(100, percent))
	filled := percent * progressCells / 100
	bar := strings.Repeat("⭐", filled) + strings.Repeat("☆", progressCells-filled)
	return fmt.Sprintf("🔮 **Генерирую интерпретацию вашего расклада**\n\n%s %d%%\n\n%s", bar, percent, stage)
}

func stageText(percent int) string {
	text := progressStages[0].text
	for _, s := range progressStages {
		if percent >= s.percent {
			text = s.text
		}
	}
	return text
}

// Progress is one chat's progress message, edited in place. The percentage never
// goes down. Transport failures are logged and never abort the reading.
type Progress struct {
	sender    Sender
	logger    *logx.Logger
	text      string
	chatID    int64
	messageID int
	percent   int
}

func newProgress(sender Sender, chatID int64, logger *logx.Logger) *Progress {
	return &Progress{sender: sender, chatID: chatID, logger: logger, percent: -1}
}

// Start sends the initial message.
func (p *Progress) Start(ctx context.Context) {
	p.percent = 0
	p.send(ctx, RenderProgress(0, progressPreparing))
}

// Set moves the bar to percent. Lower values are ignored.
func (p *Progress) Set(ctx context.Context, percent int) {
	if percent < p.percent {
		return
	}
	p.percent = percent
	text := RenderProgress(percent, stageText(percent))
	if text == p.text {
		return
	}
	if p.messageID == 0 {
		p.send(ctx, text)
		return
	}
	if err := p.sender.EditText(ctx, p.chatID, p.messageID, text, nil); err != nil {
		p.logger.Warn("Failed to update progress for chat %d: %v", p.chatID, err)
		return
	}
	p.text = text
}

// Recreate replaces the message with a fresh one at the bottom of the chat.
func (p *Progress) Recreate(ctx context.Context) {
	text := p.text
	p.Delete(ctx)
	if text == "" {
		text = RenderProgress(max(p.percent, 0), stageText(p.percent))
	}
	p.send(ctx, text)
}

// Delete removes the message.
func (p *Progress) Delete(ctx context.Context) {
	if p.messageID == 0 {
		return
	}
	if err := p.sender.DeleteMessage(ctx, p.chatID, p.messageID); err != nil {
		p.logger.Warn("Failed to delete progress for chat %d: %v", p.chatID, err)
	}
	p.messageID = 0
	p.text = ""
}

// Percent returns the last percentage shown.
func (p *Progress) Percent() int { return p.percent }

func (p *Progress) send(ctx context.Context, text string) {
	id, err := p.sender.SendText(ctx, p.chatID, text)
	if err != nil {
		p.logger.Warn("Failed to send progress to chat %d: %v", p.chatID, err)
		return
	}
	p.messageID = id
	p.text = text
}
