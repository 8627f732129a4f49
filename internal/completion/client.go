package completion

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

// #region methods
const serviceName = "storyforge.completion.v1.CompletionService"

const (
	methodGenerate           = "/" + serviceName + "/Generate"
	methodGenerateStructured = "/" + serviceName + "/GenerateStructured"
	methodGenerateWithChoice = "/" + serviceName + "/GenerateWithChoice"
)

// #endregion methods

// #region client-struct

// ClientConfig configures the gRPC completion client.
type ClientConfig struct {
	Addr        string
	CallTimeout time.Duration // per attempt; 0 = caller's deadline only
	Retry       RetryConfig
}

// Client talks to the completion service over gRPC. Request and response
// bodies are google.protobuf.Struct messages, so no generated stubs are needed.
type Client struct {
	conn    grpc.ClientConnInterface
	closer  io.Closer
	timeout time.Duration
	retry   RetryConfig
	used    atomic.Int64
}

// #endregion client-struct

// #region constructor

// NewClient connects to the completion service at cfg.Addr.
func NewClient(cfg ClientConfig) (*Client, error) {
	conn, err := grpc.NewClient(cfg.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", cfg.Addr, err)
	}
	c := NewClientWithConn(conn, cfg)
	c.closer = conn
	return c, nil
}

// NewClientWithConn creates a Client over an existing connection.
// Used for testing without a real gRPC server.
func NewClientWithConn(conn grpc.ClientConnInterface, cfg ClientConfig) *Client {
	return &Client{conn: conn, timeout: cfg.CallTimeout, retry: cfg.Retry}
}

// Close shuts down the gRPC connection if the client owns one.
func (c *Client) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer.Close()
}

// TokensUsed returns the running total of tokens consumed by this client.
func (c *Client) TokensUsed() int64 {
	return c.used.Load()
}

// #endregion constructor

// #region generate

// Generate produces free text for prompt.
func (c *Client) Generate(ctx context.Context, prompt string, opts Options) (Response, error) {
	resp, err := c.call(ctx, methodGenerate, requestFields(prompt, opts))
	if err != nil {
		return Response{}, fmt.Errorf("generate rpc: %w", err)
	}
	return Response{Text: stringField(resp, "text"), Tokens: tokensOf(resp)}, nil
}

// #endregion generate

// #region generate-structured

// GenerateStructured asks for a JSON document matching schema and decodes it
// into out. The service may return the document either as a "structured"
// Struct field or as JSON text.
func (c *Client) GenerateStructured(ctx context.Context, prompt string, schema map[string]any, out any) (Response, error) {
	fields := requestFields(prompt, Options{})
	fields["schema"] = schema

	resp, err := c.call(ctx, methodGenerateStructured, fields)
	if err != nil {
		return Response{}, fmt.Errorf("generate structured rpc: %w", err)
	}
	r := Response{Text: stringField(resp, "text"), Tokens: tokensOf(resp)}

	var data []byte
	if s := resp.GetFields()["structured"].GetStructValue(); s != nil {
		data, err = json.Marshal(s.AsMap())
		if err != nil {
			return r, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
		}
	} else {
		data = []byte(ExtractJSON(r.Text))
	}
	if err := json.Unmarshal(data, out); err != nil {
		return r, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	return r, nil
}

// #endregion generate-structured

// #region generate-with-choice

// GenerateWithChoice offers caps to the model and returns the selected one with
// its arguments. With ChoiceRequired a plain-text answer is malformed output.
func (c *Client) GenerateWithChoice(ctx context.Context, prompt string, caps []Capability, mode ChoiceMode) (Choice, error) {
	list := make([]any, len(caps))
	for i, cp := range caps {
		list[i] = map[string]any{
			"name":        cp.Name,
			"description": cp.Description,
			"parameters":  cp.Parameters,
		}
	}
	fields := requestFields(prompt, Options{})
	fields["capabilities"] = list
	fields["choice_mode"] = string(mode)

	resp, err := c.call(ctx, methodGenerateWithChoice, fields)
	if err != nil {
		return Choice{}, fmt.Errorf("generate with choice rpc: %w", err)
	}

	ch := Choice{
		Capability: stringField(resp, "capability"),
		Text:       stringField(resp, "text"),
		Tokens:     tokensOf(resp),
	}
	if args := resp.GetFields()["arguments"].GetStructValue(); args != nil {
		ch.Arguments = args.AsMap()
	}
	if mode == ChoiceRequired && ch.Capability == "" {
		return ch, fmt.Errorf("%w: no capability selected", ErrMalformedOutput)
	}
	return ch, nil
}

// #endregion generate-with-choice

// #region call

func (c *Client) call(ctx context.Context, method string, fields map[string]any) (*structpb.Struct, error) {
	req, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	var resp *structpb.Struct
	err = withRetry(ctx, c.retry, method, func(ctx context.Context) error {
		if c.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, c.timeout)
			defer cancel()
		}
		out := &structpb.Struct{}
		if err := c.conn.Invoke(ctx, method, req, out); err != nil {
			return err
		}
		resp = out
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.used.Add(int64(tokensOf(resp)))
	return resp, nil
}

// #endregion call

// #region helpers

func requestFields(prompt string, opts Options) map[string]any {
	fields := map[string]any{"prompt": prompt}
	if opts.System != "" {
		fields["system"] = opts.System
	}
	if opts.MaxTokens > 0 {
		fields["max_tokens"] = opts.MaxTokens
	}
	if opts.Temperature > 0 {
		fields["temperature"] = opts.Temperature
	}
	return fields
}

func stringField(s *structpb.Struct, name string) string {
	return s.GetFields()[name].GetStringValue()
}

func tokensOf(s *structpb.Struct) int {
	return int(s.GetFields()["tokens_used"].GetNumberValue())
}

// ExtractJSON strips markdown fences and surrounding prose from a model answer,
// returning the outermost {...} span. Text without braces is returned trimmed.
func ExtractJSON(text string) string {
	t := strings.TrimSpace(text)
	t = strings.TrimPrefix(t, "```json")
	t = strings.TrimPrefix(t, "```")
	t = strings.TrimSuffix(t, "```")
	start := strings.Index(t, "{")
	end := strings.LastIndex(t, "}")
	if start < 0 || end <= start {
		return strings.TrimSpace(t)
	}
	return t[start : end+1]
}

// #endregion helpers
