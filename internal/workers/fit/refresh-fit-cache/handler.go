// internal/workers/fit/refresh-fit-cache/handler.go
package refreshfitcache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/xeipuuv/gojsonschema"

	httpclient "admissions-workers/internal/common/http"
	"admissions-workers/internal/common/metrics"
	"admissions-workers/internal/fitstore"
	"admissions-workers/internal/models"
)

const TaskType = "refresh-fit-cache"

var (
	ErrMissingUserEmail      = errors.New("VALIDATION_FAILED")
	ErrPrecomputedLoadFailed = errors.New("NETWORK_FAILURE")
	ErrCacheWriteFailed      = errors.New("CACHE_REFRESH_FAILED")
)

// envelopeSchema gates the bulk payload before any entry is inspected.
var envelopeSchema = map[string]interface{}{
	"type":     "object",
	"required": []interface{}{"success", "fits"},
	"properties": map[string]interface{}{
		"success": map[string]interface{}{"type": "boolean"},
		"fits":    map[string]interface{}{"type": "array"},
	},
}

// Logger interface for dependency injection
type Logger interface {
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	With(fields map[string]interface{}) Logger
}

type Handler struct {
	config *Config
	fits   *fitstore.Store
	client *httpclient.Client
	logger Logger
}

func NewHandler(config *Config, fits *fitstore.Store, log Logger) *Handler {
	return &Handler{
		config: config,
		fits:   fits,
		client: httpclient.NewClient(config.Timeout),
		logger: log.With(map[string]interface{}{"taskType": TaskType}),
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		h.failJob(client, job, fmt.Errorf("parse input: %v", err), 0)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	output, err := h.execute(ctx, &input)
	if err != nil {
		retries := int32(0)
		if errors.Is(err, ErrPrecomputedLoadFailed) || errors.Is(err, ErrCacheWriteFailed) {
			retries = 3
		}
		h.failJob(client, job, err, retries)
		return
	}

	h.completeJob(client, job, output)
}

// execute reloads the user's fit index wholesale; there is no incremental
// merge. The staleness gate runs first: a stale profile forces a blocking
// recompute before the load, and a recompute failure unblocks the load
// rather than aborting it.
func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	if input.UserEmail == "" {
		return nil, fmt.Errorf("%w: userEmail is required", ErrMissingUserEmail)
	}

	recomputed, reason := h.ensureFresh(ctx, input.UserEmail)

	entries, err := h.loadPrecomputed(ctx, input.UserEmail)
	if err != nil {
		return nil, err
	}

	records := make([]models.FitRecord, 0, len(entries))
	skipped := 0
	for _, entry := range entries {
		record, ok := normalizeEntry(entry)
		if !ok {
			skipped++
			continue
		}
		records = append(records, record)
	}

	if err := h.fits.ReplaceAll(ctx, input.UserEmail, records); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCacheWriteFailed, err)
	}

	outcome := "loaded"
	if len(records) == 0 {
		outcome = "empty"
	}
	metrics.FitCacheRefreshes.WithLabelValues(outcome).Inc()

	h.logger.Info("fit cache refreshed", map[string]interface{}{
		"userEmail":    input.UserEmail,
		"fitCount":     len(records),
		"skippedCount": skipped,
		"recomputed":   recomputed,
	})

	return &Output{
		FitCount:     len(records),
		SkippedCount: skipped,
		Recomputed:   recomputed,
		Reason:       reason,
	}, nil
}

// ensureFresh asks the staleness endpoint whether the profile changed and, if
// so, waits for a full recompute to finish. Neither call can abort the
// refresh: a failed check loads whatever is already precomputed, and a failed
// recompute loads the stale set.
func (h *Handler) ensureFresh(ctx context.Context, userEmail string) (bool, string) {
	status, err := h.checkStaleness(ctx, userEmail)
	if err != nil {
		h.logger.Warn("staleness check failed, loading without recompute", map[string]interface{}{
			"userEmail": userEmail,
			"errorCode": "STALENESS_CHECK_FAILED",
			"error":     err.Error(),
		})
		return false, ""
	}

	if !status.NeedsRecomputation {
		return false, status.Reason
	}

	h.logger.Info("profile stale, triggering recompute", map[string]interface{}{
		"userEmail": userEmail,
		"reason":    status.Reason,
	})

	if err := h.triggerRecompute(ctx, userEmail); err != nil {
		h.logger.Warn("recompute failed, loading previous fits", map[string]interface{}{
			"userEmail": userEmail,
			"error":     err.Error(),
		})
	}

	return true, status.Reason
}

func (h *Handler) checkStaleness(ctx context.Context, userEmail string) (*stalenessStatus, error) {
	var status stalenessStatus
	err := h.client.PostJSON(ctx, h.config.StalenessURL, nil,
		map[string]string{"user_email": userEmail}, &status)
	if err != nil {
		return nil, err
	}
	return &status, nil
}

// triggerRecompute blocks until the recompute endpoint answers. Success and
// failure both unblock the caller.
func (h *Handler) triggerRecompute(ctx context.Context, userEmail string) error {
	return h.client.PostJSON(ctx, h.config.RecomputeURL, nil,
		map[string]string{"user_email": userEmail}, nil)
}

// loadPrecomputed fetches the bulk payload with retries. An envelope that
// fails validation or reports success=false is an empty load, not an error:
// the cache then mirrors what upstream actually produced.
func (h *Handler) loadPrecomputed(ctx context.Context, userEmail string) ([]map[string]interface{}, error) {
	var lastErr error
	for attempt := 0; attempt <= h.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(100*(1<<(attempt-1))) * time.Millisecond
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", ErrPrecomputedLoadFailed, ctx.Err())
			case <-time.After(backoff):
			}
		}

		raw, err := h.doPrecomputedRequest(ctx, userEmail)
		if err == nil {
			return h.decodeEnvelope(raw), nil
		}
		lastErr = err

		if ctx.Err() != nil {
			break
		}

		h.logger.Warn("precomputed fits load failed, retrying", map[string]interface{}{
			"attempt": attempt + 1,
			"error":   err.Error(),
		})
	}

	return nil, fmt.Errorf("%w: %v", ErrPrecomputedLoadFailed, lastErr)
}

func (h *Handler) doPrecomputedRequest(ctx context.Context, userEmail string) ([]byte, error) {
	resp, err := h.postJSON(ctx, h.config.PrecomputedFitsURL, userEmail)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("precomputed endpoint returned status %d", resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}

func (h *Handler) postJSON(ctx context.Context, url, userEmail string) (*http.Response, error) {
	body, _ := json.Marshal(map[string]string{"user_email": userEmail})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return h.client.Do(req)
}

// decodeEnvelope validates and unpacks the payload. Anything that is not a
// successful {success, fits} envelope yields zero entries.
func (h *Handler) decodeEnvelope(raw []byte) []map[string]interface{} {
	schemaLoader := gojsonschema.NewGoLoader(envelopeSchema)
	documentLoader := gojsonschema.NewBytesLoader(raw)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		h.logger.Warn("precomputed fits payload not parseable", map[string]interface{}{
			"error": err.Error(),
		})
		return nil
	}
	if !result.Valid() {
		errs := make([]string, len(result.Errors()))
		for i, desc := range result.Errors() {
			errs[i] = desc.String()
		}
		h.logger.Warn("precomputed fits envelope invalid", map[string]interface{}{
			"errors": errs,
		})
		return nil
	}

	var envelope precomputedEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil
	}
	if !envelope.Success {
		h.logger.Warn("precomputed fits endpoint reported failure", map[string]interface{}{})
		return nil
	}
	return envelope.Fits
}

func (h *Handler) completeJob(client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	_, err = cmd.Send(context.Background())
	if err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

func (h *Handler) failJob(client worker.JobClient, job entities.Job, err error, retries int32) {
	errorCode := "PARSE_ERROR"
	switch {
	case errors.Is(err, ErrMissingUserEmail):
		errorCode = "VALIDATION_FAILED"
	case errors.Is(err, ErrPrecomputedLoadFailed):
		errorCode = "NETWORK_FAILURE"
	case errors.Is(err, ErrCacheWriteFailed):
		errorCode = "CACHE_REFRESH_FAILED"
	}

	h.logger.Error("job failed", map[string]interface{}{
		"jobKey":       job.Key,
		"errorCode":    errorCode,
		"errorMessage": err.Error(),
		"retries":      retries,
	})

	_, sendErr := client.NewFailJobCommand().
		JobKey(job.Key).
		Retries(retries).
		ErrorMessage(err.Error()).
		Send(context.Background())
	if sendErr != nil {
		h.logger.Error("failed to send fail job command", map[string]interface{}{
			"error": sendErr.Error(),
		})
	}
}

// Execute method for direct usage
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
