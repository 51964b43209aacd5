// Package httpgateway implements every collaborator group over HTTP. Each
// action is posted as JSON to {base}/{action_type}.
package httpgateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dukex/drip/pkg/models"
	"github.com/dukex/drip/pkg/protocol"
)

const (
	defaultTimeout = 30 * time.Second
	maxErrorBody   = 512
)

// Gateway posts side-effect calls to an HTTP collaborator service.
type Gateway struct {
	baseURL string
	client  *http.Client
	headers map[string]string
	logger  *slog.Logger
}

type Option func(*Gateway)

func WithHTTPClient(client *http.Client) Option {
	return func(g *Gateway) {
		g.client = client
	}
}

// WithHeader adds a static header, e.g. an API key, to every request.
func WithHeader(key, value string) Option {
	return func(g *Gateway) {
		g.headers[key] = value
	}
}

func New(baseURL string, logger *slog.Logger, opts ...Option) *Gateway {
	gateway := &Gateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: defaultTimeout},
		headers: make(map[string]string),
		logger:  logger.With("module", "httpgateway"),
	}

	for _, opt := range opts {
		opt(gateway)
	}

	return gateway
}

// StatusError is an unexpected HTTP status returned by the collaborator.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

type requestBody struct {
	TenantID       string         `json:"tenant_id"`
	ContactID      string         `json:"contact_id"`
	EnrollmentID   string         `json:"enrollment_id"`
	WorkflowID     string         `json:"workflow_id"`
	ActionID       string         `json:"action_id"`
	Attempt        int            `json:"attempt"`
	IdempotencyKey string         `json:"idempotency_key"`
	Config         map[string]any `json:"config"`
}

func (g *Gateway) post(ctx context.Context, actionType models.ActionType, call protocol.Call) (*protocol.Result, error) {
	body, err := json.Marshal(requestBody{
		TenantID:       call.TenantID,
		ContactID:      call.ContactID,
		EnrollmentID:   call.EnrollmentID,
		WorkflowID:     call.WorkflowID,
		ActionID:       call.ActionID,
		Attempt:        call.Attempt,
		IdempotencyKey: call.IdempotencyKey,
		Config:         call.Config,
	})
	if err != nil {
		return nil, protocol.Terminal(fmt.Errorf("failed to marshal request: %w", err))
	}

	url := g.baseURL + "/" + string(actionType)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, protocol.Terminal(fmt.Errorf("failed to create request: %w", err))
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", call.IdempotencyKey)

	for key, value := range g.headers {
		req.Header.Set(key, value)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, protocol.Transient(fmt.Errorf("request failed: %w", err))
	}

	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			g.logger.WarnContext(ctx, "failed to close response body", "error", closeErr)
		}
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, protocol.Transient(fmt.Errorf("failed to read response: %w", err))
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, classifyStatus(resp.StatusCode, respBody)
	}

	result := &protocol.Result{}

	if len(bytes.TrimSpace(respBody)) > 0 {
		err := json.Unmarshal(respBody, result)
		if err != nil {
			// Non-JSON success bodies are kept verbatim.
			result.Output = map[string]any{"body": string(respBody)}
		}
	}

	g.logger.DebugContext(ctx, "collaborator call succeeded",
		"action_type", actionType,
		"enrollment_id", call.EnrollmentID,
		"status", resp.StatusCode)

	return result, nil
}

func classifyStatus(status int, body []byte) error {
	message := string(body)
	if len(message) > maxErrorBody {
		message = message[:maxErrorBody]
	}

	statusErr := &StatusError{StatusCode: status, Message: message}

	switch {
	case status >= http.StatusInternalServerError,
		status == http.StatusRequestTimeout,
		status == http.StatusTooManyRequests:
		return protocol.Transient(statusErr)
	default:
		return protocol.Terminal(statusErr)
	}
}

func (g *Gateway) SendEmail(ctx context.Context, call protocol.Call) (*protocol.Result, error) {
	return g.post(ctx, models.ActionSendEmail, call)
}

func (g *Gateway) SendSMS(ctx context.Context, call protocol.Call) (*protocol.Result, error) {
	return g.post(ctx, models.ActionSendSMS, call)
}

func (g *Gateway) SendVoicemail(ctx context.Context, call protocol.Call) (*protocol.Result, error) {
	return g.post(ctx, models.ActionSendVoicemail, call)
}

func (g *Gateway) SendMessenger(ctx context.Context, call protocol.Call) (*protocol.Result, error) {
	return g.post(ctx, models.ActionSendMessenger, call)
}

func (g *Gateway) MakeCall(ctx context.Context, call protocol.Call) (*protocol.Result, error) {
	return g.post(ctx, models.ActionMakeCall, call)
}

func (g *Gateway) CreateContact(ctx context.Context, call protocol.Call) (*protocol.Result, error) {
	return g.post(ctx, models.ActionCreateContact, call)
}

func (g *Gateway) UpdateContact(ctx context.Context, call protocol.Call) (*protocol.Result, error) {
	return g.post(ctx, models.ActionUpdateContact, call)
}

func (g *Gateway) AddTag(ctx context.Context, call protocol.Call) (*protocol.Result, error) {
	return g.post(ctx, models.ActionAddTag, call)
}

func (g *Gateway) RemoveTag(ctx context.Context, call protocol.Call) (*protocol.Result, error) {
	return g.post(ctx, models.ActionRemoveTag, call)
}

func (g *Gateway) AddToCampaign(ctx context.Context, call protocol.Call) (*protocol.Result, error) {
	return g.post(ctx, models.ActionAddToCampaign, call)
}

func (g *Gateway) RemoveFromCampaign(ctx context.Context, call protocol.Call) (*protocol.Result, error) {
	return g.post(ctx, models.ActionRemoveFromCampaign, call)
}

func (g *Gateway) MovePipelineStage(ctx context.Context, call protocol.Call) (*protocol.Result, error) {
	return g.post(ctx, models.ActionMovePipelineStage, call)
}

func (g *Gateway) AssignUser(ctx context.Context, call protocol.Call) (*protocol.Result, error) {
	return g.post(ctx, models.ActionAssignUser, call)
}

func (g *Gateway) CreateTask(ctx context.Context, call protocol.Call) (*protocol.Result, error) {
	return g.post(ctx, models.ActionCreateTask, call)
}

func (g *Gateway) AddNote(ctx context.Context, call protocol.Call) (*protocol.Result, error) {
	return g.post(ctx, models.ActionAddNote, call)
}

func (g *Gateway) SendNotification(ctx context.Context, call protocol.Call) (*protocol.Result, error) {
	return g.post(ctx, models.ActionSendNotification, call)
}

func (g *Gateway) CreateOpportunity(ctx context.Context, call protocol.Call) (*protocol.Result, error) {
	return g.post(ctx, models.ActionCreateOpportunity, call)
}

func (g *Gateway) RunCustomCode(ctx context.Context, call protocol.Call) (*protocol.Result, error) {
	return g.post(ctx, models.ActionCustomCode, call)
}

func (g *Gateway) GrantCourseAccess(ctx context.Context, call protocol.Call) (*protocol.Result, error) {
	return g.post(ctx, models.ActionGrantCourseAccess, call)
}

func (g *Gateway) RevokeCourseAccess(ctx context.Context, call protocol.Call) (*protocol.Result, error) {
	return g.post(ctx, models.ActionRevokeCourseAccess, call)
}

var (
	_ protocol.Communicator = (*Gateway)(nil)
	_ protocol.CRM          = (*Gateway)(nil)
	_ protocol.Internal     = (*Gateway)(nil)
	_ protocol.Membership   = (*Gateway)(nil)
)
