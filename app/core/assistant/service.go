package assistant

import (
	"context"
	"fmt"

	"atlas/app/core/intent"
	"atlas/app/pkg/logger"
)

const defaultConfidenceThreshold = 0.6

const (
	msgGeneralConversation = "This doesn't appear to be a personal assistant task. I'll handle it as a general conversation."
	msgNeedMoreInfo        = "I need a bit more information to help you with that."
	msgProcessingFailure   = "I encountered an error while processing your request. Please try again."
)

// Request is a single utterance to process. Context carries opaque
// caller-provided values that are handed to capability handlers untouched.
type Request struct {
	Text    string                 `json:"text"`
	UserID  string                 `json:"user_id"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// Response is the uniform envelope every request resolves to, whatever the
// outcome: general conversation, missing handler, follow-up, handler result
// or contained failure.
type Response struct {
	Success          bool                   `json:"success"`
	Message          string                 `json:"message"`
	IntentType       string                 `json:"intent_type"`
	Confidence       float64                `json:"confidence"`
	Data             map[string]interface{} `json:"data,omitempty"`
	Error            string                 `json:"error,omitempty"`
	RequiresFollowup bool                   `json:"requires_followup"`
	FollowupQuestion string                 `json:"followup_question,omitempty"`
	IsAssistantTask  bool                   `json:"is_assistant_task"`
}

// CapabilitiesDescriptor is the informational view of what the assistant can
// currently do.
type CapabilitiesDescriptor struct {
	AvailableCapabilities map[string]Capability `json:"available_capabilities"`
	ConfidenceThreshold   float64               `json:"confidence_threshold"`
	SupportedIntents      []string              `json:"supported_intents"`
}

// Service coordinates intent recognition and capability handler execution.
// It is stateless across requests; the only blocking point is the handler
// invocation itself.
type Service struct {
	recognizer *intent.Recognizer
	registry   *Registry
	threshold  float64
}

func NewService(recognizer *intent.Recognizer, registry *Registry, threshold float64) *Service {
	if threshold <= 0 || threshold > 1 {
		threshold = defaultConfidenceThreshold
	}
	return &Service{
		recognizer: recognizer,
		registry:   registry,
		threshold:  threshold,
	}
}

// Threshold returns the active confidence threshold.
func (s *Service) Threshold() float64 {
	return s.threshold
}

// Process runs the per-request state machine: classify, threshold gate,
// handler lookup, missing-entity gate, handler execution. Every outcome is
// returned as a Response value; no error or panic ever escapes to the caller.
func (s *Service) Process(ctx context.Context, req Request) (resp Response) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Assistant request processing panicked: %v", r)
			resp = s.failureResponse(fmt.Sprintf("%v", r))
		}
	}()

	it := s.recognizer.Recognize(req.Text)
	logger.Info("Recognized intent=%s action=%q confidence=%.2f user=%s", it.Type, it.Action, it.Confidence, req.UserID)

	isAssistantTask := it.Type != intent.TypeUnknown &&
		it.Type != intent.TypeGeneralChat &&
		it.Confidence >= s.threshold

	if !isAssistantTask {
		return Response{
			Success:    true,
			Message:    msgGeneralConversation,
			IntentType: string(it.Type),
			Confidence: it.Confidence,
		}
	}

	handler, ok := s.registry.Get(it.Type)
	if !ok {
		return Response{
			Success:         false,
			Message:         fmt.Sprintf("I understand you want help with %s, but that feature isn't available yet.", it.Type),
			IntentType:      string(it.Type),
			Confidence:      it.Confidence,
			Error:           fmt.Sprintf("no handler available for %s", it.Type),
			IsAssistantTask: true,
		}
	}

	required := intent.RequiredEntities(it.Type, it.Action)
	if missing := intent.MissingEntities(it.Entities, required); len(missing) > 0 {
		return Response{
			Success:          true,
			Message:          msgNeedMoreInfo,
			IntentType:       string(it.Type),
			Confidence:       it.Confidence,
			RequiresFollowup: true,
			FollowupQuestion: FollowupQuestion(it.Type, missing),
			IsAssistantTask:  true,
		}
	}

	reqContext := make(map[string]interface{}, len(req.Context)+1)
	for k, v := range req.Context {
		reqContext[k] = v
	}
	reqContext["user_id"] = req.UserID

	handlerResp, err := handler.Execute(ctx, it, it.Entities, reqContext)
	if err != nil {
		logger.Error("Handler %s failed: %v", it.Type, err)
		return s.failureResponse(err.Error())
	}

	return Response{
		Success:          handlerResp.Success,
		Message:          handlerResp.Message,
		IntentType:       string(it.Type),
		Confidence:       it.Confidence,
		Data:             handlerResp.Data,
		Error:            handlerResp.Error,
		RequiresFollowup: handlerResp.RequiresFollowup,
		FollowupQuestion: handlerResp.FollowupQuestion,
		IsAssistantTask:  true,
	}
}

// Recognize exposes classification without dispatch, for diagnostics.
func (s *Service) Recognize(text string) intent.Intent {
	return s.recognizer.Recognize(text)
}

// Capabilities reports registered capabilities, the active threshold and
// every supported intent type except Unknown.
func (s *Service) Capabilities() CapabilitiesDescriptor {
	capabilities := make(map[string]Capability)
	for _, c := range s.registry.Capabilities() {
		capabilities[c.Name] = c
	}

	var supported []string
	for _, t := range intent.Types() {
		if t == intent.TypeUnknown {
			continue
		}
		supported = append(supported, string(t))
	}

	return CapabilitiesDescriptor{
		AvailableCapabilities: capabilities,
		ConfidenceThreshold:   s.threshold,
		SupportedIntents:      supported,
	}
}

func (s *Service) failureResponse(description string) Response {
	return Response{
		Success:         false,
		Message:         msgProcessingFailure,
		IntentType:      "error",
		Confidence:      0,
		Error:           description,
		IsAssistantTask: true,
	}
}
