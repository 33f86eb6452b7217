package entities

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"

	"github.com/IGNF/gpf-sdk-go/pkg/gpferrors"
	"github.com/IGNF/gpf-sdk-go/pkg/request"
)

// ProcessingExecution status vocabulary (spec.md §3).
const (
	ProcessingExecutionCreated  = "CREATED"
	ProcessingExecutionWaiting  = "WAITING"
	ProcessingExecutionProgress = "PROGRESS"
	ProcessingExecutionSuccess  = "SUCCESS"
	ProcessingExecutionFailure  = "FAILURE"
	ProcessingExecutionAborted  = "ABORTED"
)

// ProcessingExecution wraps a platform processing job.
type ProcessingExecution struct {
	Base
	TagsCapability
	CommentsCapability
}

// NewProcessingExecution wraps an existing processing-execution's attribute
// map.
func NewProcessingExecution(req *request.Requester, datastore string, attrs Entity) *ProcessingExecution {
	p := &ProcessingExecution{Base: NewBase(req, "processing_execution", "processing_execution_id", datastore, attrs)}
	p.TagsCapability = TagsCapability{base: &p.Base}
	p.CommentsCapability = CommentsCapability{base: &p.Base}
	return p
}

// ApiCreate creates the processing-execution remotely from body.
func (p *ProcessingExecution) ApiCreate(ctx context.Context, body map[string]interface{}) error {
	return p.Base.ApiCreate(ctx, body, nil)
}

// ApiListProcessingExecutions lists processing-executions in the datastore
// matching the given filters — used by the reconciliation state machine to
// locate a prior job by its output/processing/input signature (spec.md
// §4.5.2).
func ApiListProcessingExecutions(ctx context.Context, req *request.Requester, datastore string, infosFilter, tagsFilter map[string]string, pageSize int) ([]*ProcessingExecution, error) {
	base := NewBase(req, "processing_execution", "processing_execution_id", datastore, nil)
	rows, err := base.apiList(ctx, infosFilter, tagsFilter, pageSize)
	if err != nil {
		return nil, err
	}
	out := make([]*ProcessingExecution, len(rows))
	for i, row := range rows {
		out[i] = NewProcessingExecution(req, datastore, row)
	}
	return out, nil
}

// ApiLaunch starts the processing-execution.
func (p *ProcessingExecution) ApiLaunch(ctx context.Context) error {
	resp, err := p.req.RouteRequest(ctx, "processing_execution_launch", p.routeParams(nil), "", nil, nil, false, nil, nil, 0)
	if err != nil {
		return err
	}
	return p.replaceAttrs(resp)
}

// ApiAbort requests the processing-execution stop.
func (p *ProcessingExecution) ApiAbort(ctx context.Context) error {
	resp, err := p.req.RouteRequest(ctx, "processing_execution_abort", p.routeParams(nil), "", nil, nil, false, nil, nil, 0)
	if err != nil {
		return err
	}
	return p.replaceAttrs(resp)
}

// ApiLogs returns the job's log text. The server may respond with either a
// raw string or a JSON array of lines; both are normalized to a single
// newline-joined string (spec.md §4.4).
func (p *ProcessingExecution) ApiLogs(ctx context.Context) (string, error) {
	resp, err := p.req.RouteRequest(ctx, "processing_execution_logs", p.routeParams(nil), "", nil, nil, false, nil, nil, 0)
	if err != nil {
		return "", err
	}
	return decodeLogs(resp.Body)
}

// ApiListLogsTail returns only the last n lines of the job's log text.
// Supplemented per SPEC_FULL.md §4.4: a convenience wrapper over ApiLogs.
func (p *ProcessingExecution) ApiListLogsTail(ctx context.Context, n int) (string, error) {
	full, err := p.ApiLogs(ctx)
	if err != nil {
		return "", err
	}
	if full == "" {
		return "", nil
	}
	lines := strings.Split(full, "\n")
	if n > 0 && len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n"), nil
}

func decodeLogs(body []byte) (string, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return "", nil
	}
	if trimmed[0] == '[' {
		var lines []string
		if err := json.Unmarshal(trimmed, &lines); err != nil {
			return "", gpferrors.NewGpfSdkError("format de logs inattendu", err)
		}
		return strings.Join(lines, "\n"), nil
	}
	var s string
	if err := json.Unmarshal(trimmed, &s); err == nil {
		return s, nil
	}
	return string(trimmed), nil
}
