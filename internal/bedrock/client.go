// Package bedrock invokes Anthropic models on Amazon Bedrock with
// retry handling, guardrail evaluation, and knowledge base context.
package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awsbedrock "github.com/aws/aws-sdk-go-v2/service/bedrock"
	bedrocktypes "github.com/aws/aws-sdk-go-v2/service/bedrock/types"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/google/uuid"

	"cartparse/internal/config"
	"cartparse/internal/guardrails"
	"cartparse/internal/prompts"
	"cartparse/internal/resilience"
	"cartparse/internal/retrieval"
	"cartparse/internal/telemetry"
)

// ModelInvoker is the Bedrock runtime surface the client depends on.
type ModelInvoker interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// ModelLister is the control-plane surface used to enumerate models.
type ModelLister interface {
	ListFoundationModels(ctx context.Context, params *awsbedrock.ListFoundationModelsInput, optFns ...func(*awsbedrock.Options)) (*awsbedrock.ListFoundationModelsOutput, error)
}

// Invocation is the result of one model invocation. When Blocked is
// set the model either was not called (input guardrails) or its
// response was rejected by the provider's guardrail; Content is empty
// and the guardrail results explain why.
type Invocation struct {
	RequestID    string
	Content      string
	InputTokens  int64
	OutputTokens int64
	StopReason   string
	ModelID      string
	Latency      time.Duration
	RetryCount   int
	Blocked      bool
	InputResult  *guardrails.Result
	OutputResult *guardrails.Result
	RawResponse  []byte
}

// TotalTokens returns the combined token usage.
func (inv *Invocation) TotalTokens() int64 {
	return inv.InputTokens + inv.OutputTokens
}

// Violations returns all guardrail violations from both directions.
func (inv *Invocation) Violations() []guardrails.Violation {
	var all []guardrails.Violation
	if inv.InputResult != nil {
		all = append(all, inv.InputResult.Violations...)
	}
	if inv.OutputResult != nil {
		all = append(all, inv.OutputResult.Violations...)
	}
	return all
}

// InvokeOption adjusts a single invocation.
type InvokeOption func(*invokeOptions)

type invokeOptions struct {
	systemPrompt         string
	retrievalQuery       string
	modelConfig          *config.ModelConfig
	skipInputGuardrails  bool
	skipOutputGuardrails bool
}

// WithSystemPrompt sets the system prompt for the invocation.
func WithSystemPrompt(prompt string) InvokeOption {
	return func(o *invokeOptions) { o.systemPrompt = prompt }
}

// WithModelConfig overrides the configured model parameters for one
// invocation.
func WithModelConfig(mc config.ModelConfig) InvokeOption {
	return func(o *invokeOptions) { o.modelConfig = &mc }
}

// WithRetrievalQuery sets the knowledge base query, which otherwise
// defaults to the prompt itself. Ignored outside the knowledge base
// path.
func WithRetrievalQuery(query string) InvokeOption {
	return func(o *invokeOptions) { o.retrievalQuery = query }
}

// SkipInputGuardrails disables input evaluation for one invocation.
func SkipInputGuardrails() InvokeOption {
	return func(o *invokeOptions) { o.skipInputGuardrails = true }
}

// SkipOutputGuardrails disables output evaluation for one invocation.
func SkipOutputGuardrails() InvokeOption {
	return func(o *invokeOptions) { o.skipOutputGuardrails = true }
}

// Dependencies are the external surfaces the client calls. Runtime is
// required; the others may be nil.
type Dependencies struct {
	Runtime   ModelInvoker
	Control   ModelLister
	Retriever *retrieval.Client
	Metrics   *telemetry.Metrics
}

// Client invokes Bedrock models with guardrails and retries.
type Client struct {
	cfg        *config.Config
	runtime    ModelInvoker
	control    ModelLister
	retriever  *retrieval.Client
	guardrails *guardrails.Manager
	retry      *resilience.Strategy
	metrics    *telemetry.Metrics
}

// New builds a client against the real AWS endpoints configured in cfg.
func New(ctx context.Context, cfg *config.Config, metrics *telemetry.Metrics) (*Client, error) {
	awsCfg, err := loadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	deps := Dependencies{
		Runtime: bedrockruntime.NewFromConfig(awsCfg),
		Control: awsbedrock.NewFromConfig(awsCfg),
		Metrics: metrics,
	}
	if cfg.KnowledgeBase.KnowledgeBaseID != "" {
		deps.Retriever = retrieval.New(bedrockagentruntime.NewFromConfig(awsCfg), cfg.KnowledgeBase, metrics)
	}
	return NewWithDependencies(cfg, deps)
}

// NewWithDependencies builds a client over explicit dependencies.
func NewWithDependencies(cfg *config.Config, deps Dependencies) (*Client, error) {
	if deps.Runtime == nil {
		return nil, errors.New("bedrock: runtime client is required")
	}

	manager, err := buildGuardrails(cfg.Guardrails, deps.Metrics)
	if err != nil {
		return nil, err
	}

	strategy := resilience.New(resilience.Config{
		MaxRetries: cfg.Retry.MaxRetries,
		BaseDelay:  cfg.Retry.BaseDelay,
		MaxDelay:   cfg.Retry.MaxDelay,
		Jitter:     cfg.Retry.Jitter,
	})
	metrics := deps.Metrics
	model := cfg.Model.ModelID
	strategy.OnRetry = func(attempt int, delay time.Duration, err error) {
		metrics.RecordRetry(model, errorLabel(err))
	}

	return &Client{
		cfg:        cfg,
		runtime:    deps.Runtime,
		control:    deps.Control,
		retriever:  deps.Retriever,
		guardrails: manager,
		retry:      strategy,
		metrics:    metrics,
	}, nil
}

// Guardrails exposes the manager for callers that evaluate content
// without invoking the model.
func (c *Client) Guardrails() *guardrails.Manager {
	return c.guardrails
}

func buildGuardrails(gc config.GuardrailsConfig, metrics *telemetry.Metrics) (*guardrails.Manager, error) {
	policy, err := guardrails.ParsePolicy(gc.Actions)
	if err != nil {
		return nil, fmt.Errorf("guardrail policy: %w", err)
	}

	cfg := guardrails.DefaultConfig()
	if gc.MinInputLength > 0 {
		cfg.MinInputLength = gc.MinInputLength
	}
	if gc.MaxInputLength > 0 {
		cfg.MaxInputLength = gc.MaxInputLength
	}
	if gc.MaxOutputItems > 0 {
		cfg.MaxOutputItems = gc.MaxOutputItems
	}
	if gc.LowConfidenceFloor > 0 {
		cfg.LowConfidenceFloor = gc.LowConfidenceFloor
	}
	cfg.FingerprintKey = gc.FingerprintKey
	cfg.Policy = policy
	return guardrails.NewManager(cfg, metrics), nil
}

func loadAWSConfig(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	region := cfg.AWS.Region
	if region == "" {
		region = "us-east-1"
	}

	httpClient := &http.Client{
		Timeout: cfg.Timeouts.Request,
		Transport: &http.Transport{
			DialContext:           (&net.Dialer{Timeout: cfg.Timeouts.Connect}).DialContext,
			MaxIdleConns:          32,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
		awsconfig.WithHTTPClient(httpClient),
	}
	if cfg.AWS.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(cfg.AWS.Profile))
	}
	if cfg.AWS.AccessKeyID != "" && cfg.AWS.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWS.AccessKeyID, cfg.AWS.SecretAccessKey, ""),
		))
	}
	return awsconfig.LoadDefaultConfig(ctx, opts...)
}

// Invoke sends one prompt to the model. Guardrail blocks are reported
// through Invocation.Blocked rather than an error so callers can
// distinguish policy decisions from failures.
func (c *Client) Invoke(ctx context.Context, prompt string, opts ...InvokeOption) (*Invocation, error) {
	var options invokeOptions
	for _, opt := range opts {
		opt(&options)
	}
	mc := c.cfg.Model
	if options.modelConfig != nil {
		mc = *options.modelConfig
	}

	requestID := uuid.New().String()
	start := time.Now()
	recorder := c.metrics.NewInvocationRecorder(mc.ModelID)

	var inputResult *guardrails.Result
	if !options.skipInputGuardrails {
		res := c.guardrails.EvaluateInput(prompt)
		inputResult = &res
		if !res.Allowed {
			slog.Error("Input blocked by guardrails",
				"request_id", requestID,
				"violations", len(res.Violations),
			)
			recorder.RecordBlocked()
			return &Invocation{
				RequestID:   requestID,
				ModelID:     mc.ModelID,
				Latency:     time.Since(start),
				Blocked:     true,
				InputResult: inputResult,
			}, nil
		}
		if res.Sanitized != "" {
			prompt = res.Sanitized
		}
	}

	if c.cfg.Logging.LogRequests {
		slog.Info("Invoking Bedrock model",
			"request_id", requestID,
			"model_id", mc.ModelID,
			"prompt_length", len(prompt),
			"has_system_prompt", options.systemPrompt != "",
		)
	}

	body, err := buildRequestBody(prompt, options.systemPrompt, mc)
	if err != nil {
		return nil, fmt.Errorf("building request body: %w", err)
	}

	input := &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(mc.ModelID),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	}
	if c.cfg.Guardrails.GuardrailID != "" {
		input.GuardrailIdentifier = aws.String(c.cfg.Guardrails.GuardrailID)
		input.GuardrailVersion = aws.String(c.cfg.Guardrails.GuardrailVersion)
		input.Trace = types.TraceEnabled
	}

	var output *bedrockruntime.InvokeModelOutput
	retries, err := c.retry.Do(ctx, func() error {
		out, ierr := c.runtime.InvokeModel(ctx, input)
		if ierr != nil {
			return Classify(ierr)
		}
		output = out
		return nil
	})
	if err != nil {
		recorder.RecordError(errorLabel(err))
		return nil, err
	}

	var resp anthropicResponse
	if err := json.Unmarshal(output.Body, &resp); err != nil {
		recorder.RecordError("decode_error")
		return nil, fmt.Errorf("decoding model response: %w", err)
	}
	content := extractContent(resp)

	providerBlocked, verdictViolations := c.guardrails.TranslateProviderVerdict(output.Body)

	var outputResult *guardrails.Result
	if !options.skipOutputGuardrails {
		res := c.guardrails.EvaluateOutput(content)
		outputResult = &res
		if !res.Allowed {
			slog.Warn("Output has guardrail violations", "violations", len(res.Violations))
		}
	}
	if len(verdictViolations) > 0 {
		if outputResult == nil {
			outputResult = &guardrails.Result{Allowed: true, Sanitized: content}
		}
		outputResult.Violations = append(outputResult.Violations, verdictViolations...)
		if providerBlocked {
			outputResult.Allowed = false
			c.metrics.RecordOutputBlocked()
			slog.Warn("Response blocked by Bedrock Guardrails", "model_id", mc.ModelID)
		}
	}

	latency := time.Since(start)
	if c.cfg.Logging.LogResponses {
		slog.Info("Bedrock model response received",
			"request_id", requestID,
			"model_id", mc.ModelID,
			"content_length", len(content),
			"input_tokens", resp.Usage.InputTokens,
			"output_tokens", resp.Usage.OutputTokens,
			"latency_ms", latency.Milliseconds(),
		)
	}
	recorder.RecordSuccess(resp.Usage.InputTokens, resp.Usage.OutputTokens)

	return &Invocation{
		RequestID:    requestID,
		Content:      content,
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
		StopReason:   resp.StopReason,
		ModelID:      mc.ModelID,
		Latency:      latency,
		RetryCount:   retries,
		Blocked:      providerBlocked,
		InputResult:  inputResult,
		OutputResult: outputResult,
		RawResponse:  output.Body,
	}, nil
}

// ExtractGroceryItems invokes the model with the grocery extraction
// prompt template.
func (c *Client) ExtractGroceryItems(ctx context.Context, groceryText string, includeExamples bool) (*Invocation, error) {
	system, user := prompts.ExtractionPrompt(groceryText, includeExamples)
	return c.Invoke(ctx, user, WithSystemPrompt(system))
}

// InvokeWithKnowledgeBase retrieves catalog context for the prompt and
// injects it into the invocation. Retrieval failures fall back to a
// direct invocation rather than failing the request.
func (c *Client) InvokeWithKnowledgeBase(ctx context.Context, prompt string, opts ...InvokeOption) (*Invocation, error) {
	if c.retriever == nil {
		slog.Warn("Knowledge base not configured, invoking without context")
		return c.Invoke(ctx, prompt, opts...)
	}

	var options invokeOptions
	for _, opt := range opts {
		opt(&options)
	}
	query := options.retrievalQuery
	if query == "" {
		query = prompt
	}

	docs, err := c.retriever.Retrieve(ctx, query)
	if err != nil {
		slog.Warn("Knowledge base retrieval failed, falling back to direct invocation", "error", err)
		return c.Invoke(ctx, prompt, opts...)
	}

	system := options.systemPrompt
	if system == "" {
		system = prompts.ExtractionSystem
	}

	contextDocs := make([]prompts.Document, 0, len(docs))
	for _, doc := range docs {
		contextDocs = append(contextDocs, prompts.Document{Content: doc.Content, Source: doc.Source()})
	}
	built := prompts.NewBuilder(prompts.KindExtraction).
		WithSystem(system).
		WithDocuments(contextDocs...).
		WithUserMessage(prompt).
		Build()

	merged := append(append([]InvokeOption{}, opts...), WithSystemPrompt(built.System))
	return c.Invoke(ctx, built.UserMessage(), merged...)
}

// Health reports the outcome of a connectivity probe.
type Health struct {
	Healthy   bool   `json:"healthy"`
	ModelID   string `json:"model_id"`
	Region    string `json:"region"`
	LatencyMS int64  `json:"latency_ms,omitempty"`
	Error     string `json:"error,omitempty"`
}

// HealthCheck verifies connectivity with a minimal invocation that
// bypasses guardrails.
func (c *Client) HealthCheck(ctx context.Context) Health {
	mc := c.cfg.Model
	mc.MaxTokens = 10
	mc.Temperature = 0

	inv, err := c.Invoke(ctx, "Respond with 'OK' only.",
		WithModelConfig(mc),
		SkipInputGuardrails(),
		SkipOutputGuardrails(),
	)
	if err != nil {
		return Health{
			Healthy: false,
			ModelID: c.cfg.Model.ModelID,
			Region:  c.cfg.AWS.Region,
			Error:   err.Error(),
		}
	}
	return Health{
		Healthy:   true,
		ModelID:   c.cfg.Model.ModelID,
		Region:    c.cfg.AWS.Region,
		LatencyMS: inv.Latency.Milliseconds(),
	}
}

// ModelSummary describes one foundation model available to the account.
type ModelSummary struct {
	ModelID  string `json:"model_id"`
	Name     string `json:"name"`
	Provider string `json:"provider"`
}

// ListModels enumerates the text-generation foundation models visible
// to the account.
func (c *Client) ListModels(ctx context.Context) ([]ModelSummary, error) {
	if c.control == nil {
		return nil, errors.New("bedrock: model listing not configured")
	}

	out, err := c.control.ListFoundationModels(ctx, &awsbedrock.ListFoundationModelsInput{
		ByOutputModality: bedrocktypes.ModelModalityText,
	})
	if err != nil {
		return nil, fmt.Errorf("listing foundation models: %w", err)
	}

	models := make([]ModelSummary, 0, len(out.ModelSummaries))
	for _, m := range out.ModelSummaries {
		models = append(models, ModelSummary{
			ModelID:  aws.ToString(m.ModelId),
			Name:     aws.ToString(m.ModelName),
			Provider: aws.ToString(m.ProviderName),
		})
	}
	return models, nil
}
