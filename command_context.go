package main

import (
	"sort"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Command is the interface that all bot commands must implement
type Command interface {
	Execute(ctx *AppContext, bot BotAPI, msg *tgbotapi.Message, args string)
	Description() string
}

// CommandRegistry maps command names to handlers. Aliases share a handler
// but are hidden from the help listing.
type CommandRegistry struct {
	commands map[string]Command
	aliases  map[string]bool
}

func NewCommandRegistry() *CommandRegistry {
	return &CommandRegistry{
		commands: make(map[string]Command),
		aliases:  make(map[string]bool),
	}
}

func (r *CommandRegistry) Register(name string, cmd Command) {
	r.commands[name] = cmd
}

// Alias registers name as another spelling of an existing command.
func (r *CommandRegistry) Alias(name, target string) {
	if cmd, ok := r.commands[target]; ok {
		r.commands[name] = cmd
		r.aliases[name] = true
	}
}

// Execute runs a command if found
func (r *CommandRegistry) Execute(ctx *AppContext, bot BotAPI, msg *tgbotapi.Message) bool {
	if msg == nil {
		return false
	}
	cmdName := msg.Command()
	if cmdName == "" {
		return false
	}
	cmd, ok := r.commands[cmdName]
	if !ok {
		return false
	}
	cmd.Execute(ctx, bot, msg, msg.CommandArguments())
	return true
}

// CommandInfo is one help entry.
type CommandInfo struct {
	Name        string
	Description string
}

// List returns the non-alias commands sorted by name.
func (r *CommandRegistry) List() []CommandInfo {
	out := make([]CommandInfo, 0, len(r.commands))
	for name, cmd := range r.commands {
		if r.aliases[name] {
			continue
		}
		out = append(out, CommandInfo{Name: name, Description: cmd.Description()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
