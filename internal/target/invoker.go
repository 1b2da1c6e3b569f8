// Package target renders and performs outbound webhook invocations.
// The dispatch engine decides whether and with what context to invoke;
// this package owns rendering, header propagation, and the HTTP round trip.
package target

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/tripwirehq/tripwire/internal/types"
)

// Standard headers attached to every webhook request.
const (
	HeaderRequestID  = "request-id"
	HeaderRuleID     = "X-Rule-Id"
	HeaderRuleName   = "X-Rule-Name"
	HeaderTargetID   = "X-Target-Id"
	HeaderTargetName = "X-Target-Name"
)

// DefaultTimeout bounds one webhook round trip. A slow target degrades
// only its own rule's execution record, but never hangs a dispatch forever.
const DefaultTimeout = 30 * time.Second

// Context carries the data a target template can reference.
type Context struct {
	Event     map[string]any
	EventType *types.EventType
	Rule      *types.Rule

	// RequestID is the triggering request's ID, propagated to the target
	// when present. Empty for scheduler-triggered dispatches.
	RequestID string
}

// Result is the observed outcome of one invocation.
type Result struct {
	StatusCode int
	Success    bool
}

// Invoker performs one webhook POST per dispatch decision.
type Invoker struct {
	client *http.Client
	logger zerolog.Logger
}

// NewInvoker creates an invoker with the given timeout (DefaultTimeout
// when zero).
func NewInvoker(timeout time.Duration, logger zerolog.Logger) *Invoker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Invoker{
		client: &http.Client{Timeout: timeout},
		logger: logger.With().Str("component", "target").Logger(),
	}
}

// Invoke renders the target's headers and body against the dispatch
// context and performs the HTTP POST. Failures are observations, not
// errors: a network failure yields {StatusCode: 0, Success: false} and the
// caller records it in the execution log.
func (i *Invoker) Invoke(ctx context.Context, tgt *types.Target, tctx Context) Result {
	rctx, err := newRenderContext(map[string]any{
		"event":     tctx.Event,
		"eventType": tctx.EventType,
		"rule":      tctx.Rule,
	})
	if err != nil {
		i.logger.Error().Err(err).Str("target_id", string(tgt.ID)).Msg("failed to build render context")
		return Result{}
	}

	body, err := renderBody(tgt, rctx, tctx.Event)
	if err != nil {
		i.logger.Error().Err(err).Str("target_id", string(tgt.ID)).Msg("failed to render target body")
		return Result{}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tgt.URL, bytes.NewReader(body))
	if err != nil {
		i.logger.Error().Err(err).Str("target_id", string(tgt.ID)).Msg("failed to build target request")
		return Result{}
	}

	for name, value := range tgt.Headers {
		req.Header.Set(name, rctx.render(value))
	}

	// Standard headers win over user-supplied ones.
	if tctx.RequestID != "" {
		req.Header.Set(HeaderRequestID, tctx.RequestID)
	}
	req.Header.Set(HeaderRuleID, string(tctx.Rule.ID))
	req.Header.Set(HeaderRuleName, tctx.Rule.Name)
	req.Header.Set(HeaderTargetID, string(tgt.ID))
	req.Header.Set(HeaderTargetName, tgt.Name)
	req.Header.Set("Content-Type", "application/json")

	resp, err := i.client.Do(req)
	if err != nil {
		i.logger.Warn().Err(err).
			Str("target_id", string(tgt.ID)).
			Str("url", tgt.URL).
			Msg("target invocation failed")
		return Result{}
	}
	defer resp.Body.Close()

	return Result{
		StatusCode: resp.StatusCode,
		Success:    resp.StatusCode >= 200 && resp.StatusCode < 300,
	}
}

// renderBody produces the request body: the rendered body template when
// the target declares one, otherwise the evaluation record itself.
func renderBody(tgt *types.Target, rctx *renderContext, record map[string]any) ([]byte, error) {
	if tgt.Body == nil {
		return json.Marshal(record)
	}
	raw, err := json.Marshal(tgt.Body)
	if err != nil {
		return nil, err
	}
	return []byte(rctx.render(string(raw))), nil
}

// ValidateHeaders rejects user headers the invoker must own.
// Content negotiation headers are set from the rendered body, never by
// target configuration.
func ValidateHeaders(headers map[string]string) error {
	for name := range headers {
		switch strings.ToLower(name) {
		case "content-type", "content-length":
			return &types.ValidationError{Reason: "target headers cannot contain content-type or content-length"}
		}
	}
	return nil
}
