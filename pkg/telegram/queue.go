package telegram

import (
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// chatQueues runs the updates of one chat one after another in push order and
// different chats concurrently. A chat's worker exits once its backlog is empty.
type chatQueues struct {
	handle  func(tgbotapi.Update)
	pending map[int64][]tgbotapi.Update // present while the chat's worker runs
	wg      sync.WaitGroup
	mu      sync.Mutex
}

func newChatQueues(handle func(tgbotapi.Update)) *chatQueues {
	return &chatQueues{handle: handle, pending: make(map[int64][]tgbotapi.Update)}
}

func (q *chatQueues) push(chatID int64, upd tgbotapi.Update) {
	q.mu.Lock()
	defer q.mu.Unlock()
	backlog, running := q.pending[chatID]
	q.pending[chatID] = append(backlog, upd)
	if running {
		return
	}
	q.wg.Add(1)
	go q.drain(chatID)
}

func (q *chatQueues) drain(chatID int64) {
	defer q.wg.Done()
	for {
		q.mu.Lock()
		backlog := q.pending[chatID]
		if len(backlog) == 0 {
			delete(q.pending, chatID)
			q.mu.Unlock()
			return
		}
		upd := backlog[0]
		q.pending[chatID] = backlog[1:]
		q.mu.Unlock()

		q.handle(upd)
	}
}

// wait blocks until every worker has drained its backlog.
func (q *chatQueues) wait() { q.wg.Wait() }
