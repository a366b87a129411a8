package main

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"flowwatch/internal/netif"
)

const testUserID = 1

type fakeBot struct {
	mu       sync.Mutex
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
	nextID   int
	failMD   bool
}

func (b *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failMD {
		if m, ok := c.(tgbotapi.MessageConfig); ok && m.ParseMode != "" {
			return tgbotapi.Message{}, fmt.Errorf("can't parse entities")
		}
	}
	b.sent = append(b.sent, c)
	b.nextID++
	return tgbotapi.Message{MessageID: b.nextID, Chat: &tgbotapi.Chat{ID: testUserID}}, nil
}

func (b *fakeBot) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.requests = append(b.requests, c)
	return &tgbotapi.APIResponse{}, nil
}

// lastText returns the text of the most recent message or edit.
func (b *fakeBot) lastText() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.sent) == 0 {
		return ""
	}
	switch m := b.sent[len(b.sent)-1].(type) {
	case tgbotapi.MessageConfig:
		return m.Text
	case tgbotapi.EditMessageTextConfig:
		return m.Text
	}
	return ""
}

func (b *fakeBot) sentCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sent)
}

type fakeInterfaces struct {
	mu     sync.Mutex
	ifaces []netif.Interface
}

func (f *fakeInterfaces) Interfaces() ([]netif.Interface, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]netif.Interface, len(f.ifaces))
	copy(out, f.ifaces)
	return out, nil
}

type fakeResolver map[uint32]string

func (f fakeResolver) Resolve(pid uint32) (string, string, error) {
	name, ok := f[pid]
	if !ok {
		return "", "", fmt.Errorf("pid %d gone", pid)
	}
	return name, "/usr/bin/" + name, nil
}

func newTestAppContext(t *testing.T) *AppContext {
	t.Helper()
	cfg := defaultConfigTemplate()
	cfg.DataDir = t.TempDir()
	cfg.Telegram.AllowedUserID = testUserID
	cfg.KernelSource.Enabled = false
	cfg.Timezone = "UTC"

	ifaces := &fakeInterfaces{ifaces: []netif.Interface{
		{Name: "eth0", Kind: netif.KindEthernet, Up: true, RxBytes: 1000, TxBytes: 500},
	}}
	return newAppContext(&cfg, ifaces, fakeResolver{42: "curl", 7: "firefox"})
}

func commandMessage(text string) *tgbotapi.Message {
	cmd := strings.Fields(text)[0]
	return &tgbotapi.Message{
		Text:     text,
		From:     &tgbotapi.User{ID: testUserID},
		Chat:     &tgbotapi.Chat{ID: testUserID},
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd)}},
	}
}
