package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	config "atlas/app/configs"
	"atlas/app/core/assistant"
	"atlas/app/core/chat"
	"atlas/app/core/storage"
	"atlas/app/pkg/logger"
	"atlas/app/pkg/types"
)

// AssistantAgent turns channel messages into assistant responses. Slash
// commands go to the command executor; everything else goes through intent
// dispatch, with general conversation handed to the chat responder.
type AssistantAgent struct {
	name      string
	service   *assistant.Service
	responder chat.Responder
	command   *Executor

	mu sync.RWMutex
}

func NewAgent(name string, service *assistant.Service, responder chat.Responder, cfgMgr *config.Manager, reminders *storage.ReminderStore, securityCfg config.SecurityConfig) *AssistantAgent {
	a := &AssistantAgent{
		name:      name,
		service:   service,
		responder: responder,
	}
	a.command = NewExecutor(cfgMgr, service, reminders, securityCfg.AdminUserIDs)
	return a
}

func (a *AssistantAgent) Process(ctx context.Context, msg types.Message) (types.Message, error) {
	sessionChannel := strings.TrimSpace(msg.ChannelID)
	if sessionChannel == "" {
		sessionChannel = "unknown"
	}
	userID := strings.TrimSpace(msg.UserID)
	if userID == "" {
		userID = "anonymous"
	}
	trimmed := strings.TrimSpace(msg.Content)
	if trimmed == "" {
		return types.Message{
			ID:        msg.ID,
			ChannelID: sessionChannel,
			UserID:    userID,
			RequestID: msg.RequestID,
			Meta:      msg.Meta,
		}, nil
	}

	msg.ChannelID = sessionChannel
	msg.UserID = userID
	msg.Content = trimmed
	if strings.TrimSpace(msg.RequestID) == "" {
		msg.RequestID = msg.ID
	}

	if strings.HasPrefix(trimmed, "/") {
		out, handled, err := a.command.ExecuteSlash(ctx, msg)
		if handled {
			if err != nil {
				return a.newReply(msg, fmt.Sprintf("Command failed: %v", err), map[string]interface{}{"command_error": true}), nil
			}
			return a.newReply(msg, out, nil), nil
		}
	}

	resp := a.service.Process(ctx, assistant.Request{
		Text:    trimmed,
		UserID:  userID,
		Context: map[string]interface{}{"channel_id": sessionChannel},
	})

	content := resp.Message
	if resp.RequiresFollowup && strings.TrimSpace(resp.FollowupQuestion) != "" {
		content = strings.TrimSpace(content + "\n" + resp.FollowupQuestion)
	}

	if !resp.IsAssistantTask && resp.IntentType != "error" {
		if reply := a.converse(ctx, userID, trimmed); reply != "" {
			content = reply
		}
	}

	replyMeta := map[string]interface{}{
		"assistant":         resp,
		"intent_type":       resp.IntentType,
		"confidence":        resp.Confidence,
		"is_assistant_task": resp.IsAssistantTask,
	}
	return a.newReply(msg, content, replyMeta), nil
}

// converse asks the chat responder for a conversational reply. A missing or
// failing responder falls back to the dispatch message.
func (a *AssistantAgent) converse(ctx context.Context, userID, text string) string {
	responder := a.getResponder()
	if responder == nil {
		return ""
	}
	reply, err := responder.Reply(ctx, userID, text)
	if err != nil {
		logger.Error("Chat responder failed: %v", err)
		return ""
	}
	return strings.TrimSpace(reply)
}

func (a *AssistantAgent) newReply(msg types.Message, content string, meta map[string]interface{}) types.Message {
	if meta == nil {
		meta = map[string]interface{}{}
	}
	for k, v := range msg.Meta {
		if _, exists := meta[k]; !exists {
			meta[k] = v
		}
	}
	return types.Message{
		ID:        fmt.Sprintf("asst-%d", time.Now().UnixNano()),
		Content:   content,
		Role:      types.MessageRoleAssistant,
		ChannelID: msg.ChannelID,
		UserID:    msg.UserID,
		RequestID: msg.RequestID,
		Meta:      meta,
	}
}

func (a *AssistantAgent) Name() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.name
}

func (a *AssistantAgent) SetName(name string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.name = name
}

func (a *AssistantAgent) SetResponder(responder chat.Responder) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.responder = responder
}

func (a *AssistantAgent) getResponder() chat.Responder {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.responder
}

func (a *AssistantAgent) SetSecurityConfig(securityCfg config.SecurityConfig) {
	a.command.SetAdminUsers(securityCfg.AdminUserIDs)
}

func (a *AssistantAgent) SetStatusProvider(provider func(context.Context) map[string]interface{}) {
	a.command.SetStatusProvider(provider)
}

func (a *AssistantAgent) SetConfigApplier(apply func(config.Config)) {
	a.command.SetConfigApplier(apply)
}
