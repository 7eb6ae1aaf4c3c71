package assistant

import (
	"context"
	"sort"
	"sync"

	"atlas/app/core/intent"
)

// HandlerResponse is the uniform result shape every capability handler
// returns. Its fields are passed through into the final Response unchanged.
type HandlerResponse struct {
	Success          bool
	Message          string
	Data             map[string]interface{}
	Error            string
	RequiresFollowup bool
	FollowupQuestion string
}

// Capability describes a handler for the capabilities descriptor.
type Capability struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Actions     []string `json:"actions"`
	Examples    []string `json:"examples"`
}

// Handler performs the actual domain action for a resolved intent. Handlers
// are external collaborators; the coordinator never inspects their internals.
// A returned error means the handler failed unexpectedly and is folded into
// the coordinator's generic failure response.
type Handler interface {
	Execute(ctx context.Context, it intent.Intent, entities []intent.Entity, reqContext map[string]interface{}) (HandlerResponse, error)
	Capability() Capability
}

// Registry maps intent types to capability handlers. It is built once at
// startup and injected into the Service; only a subset of intent types is
// wired, the rest are recognizable but unhandled.
type Registry struct {
	mu       sync.RWMutex
	handlers map[intent.Type]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[intent.Type]Handler)}
}

func (r *Registry) Register(intentType intent.Type, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[intentType] = h
}

func (r *Registry) Get(intentType intent.Type) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[intentType]
	return h, ok
}

// Capabilities returns the manifest of every registered handler, sorted by
// capability name for stable output.
func (r *Registry) Capabilities() []Capability {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := make([]Capability, 0, len(r.handlers))
	for _, h := range r.handlers {
		list = append(list, h.Capability())
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].Name < list[j].Name
	})
	return list
}
