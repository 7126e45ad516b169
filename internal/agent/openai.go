package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"TradeSentry/internal/biz"
	"TradeSentry/internal/conf"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/wire"
	"github.com/sashabaranov/go-openai"
)

// ProviderSet is agent providers.
var ProviderSet = wire.NewSet(NewOpenAIAgent, wire.Bind(new(biz.DecisionAgent), new(*OpenAIAgent)))

const systemPrompt = "你是一个谨慎的加密货币合约交易决策助手。" +
	"你会收到账户状态和行情快照，每个周期只输出一个决策。" +
	"请始终以 JSON 格式返回，不要输出其他内容。"

// OpenAIAgent implements biz.DecisionAgent on the OpenAI chat completion
// API. Any failure (transport, empty choices, unparsable JSON) surfaces as
// an error; the trading loop maps agent errors to a hold.
type OpenAIAgent struct {
	client *openai.Client
	model  string
	logger *log.Helper
}

// NewOpenAIAgent creates the decision agent from configuration.
func NewOpenAIAgent(c *conf.Bootstrap, logger log.Logger) *OpenAIAgent {
	var apiKey, baseURL, model string
	if c.Agent != nil {
		apiKey = c.Agent.ApiKey
		baseURL = c.Agent.BaseURL
		model = c.Agent.Model
	}
	if model == "" {
		model = openai.GPT4o
	}

	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIAgent{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
		logger: log.NewHelper(logger),
	}
}

// Decide asks the model for one decision against the snapshot.
func (a *OpenAIAgent) Decide(ctx context.Context, snapshot *biz.MarketSnapshot) (*biz.AgentDecision, error) {
	prompt, err := buildPrompt(snapshot)
	if err != nil {
		return nil, fmt.Errorf("build prompt: %w", err)
	}

	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: a.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		// 低 temperature 保证决策输出稳定
		Temperature: 0.2,
	})
	if err != nil {
		return nil, fmt.Errorf("openai api error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response from openai")
	}

	decision, err := parseDecision(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}

	a.logger.Debugw("agent raw decision",
		"type", "agent",
		"action", decision.Action,
		"symbol", decision.Symbol)
	return decision, nil
}

func buildPrompt(snapshot *biz.MarketSnapshot) (string, error) {
	raw, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("当前账户与行情快照:\n")
	b.Write(raw)
	b.WriteString(`

基于以上信息给出本周期的交易决策。规则:
- 只允许一个动作: "open"(开仓)、"close"(平仓) 或 "hold"(观望)
- in_cooldown 为 true 时应显著降低风险偏好
- 不确定时选择 "hold"

输出格式为JSON:
{
    "action": "open|close|hold",
    "symbol": "string",
    "side": "long|short",
    "notional_usd": float,
    "leverage": float,
    "reasoning": "string"
}`)
	return b.String(), nil
}

// parseDecision extracts the JSON object from the model output, tolerating
// markdown code fences around it.
func parseDecision(content string) (*biz.AgentDecision, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in agent response: %q", content)
	}

	var decision biz.AgentDecision
	if err := json.Unmarshal([]byte(content[start:end+1]), &decision); err != nil {
		return nil, fmt.Errorf("parse agent decision: %w", err)
	}

	decision.Action = strings.ToLower(strings.TrimSpace(decision.Action))
	if decision.Action == "" {
		decision.Action = biz.ActionHold
	}
	return &decision, nil
}
