package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkoukk/tiktoken-go"
	"github.com/rs/zerolog"

	"support-chat-router/internal/config"
	"support-chat-router/internal/domain/model"
	"support-chat-router/internal/domain/ports/adapter"
	"support-chat-router/internal/domain/ports/repository"
	"support-chat-router/internal/infra/logging"
	"support-chat-router/internal/infra/metrics"
)

// Fixed reply texts, kept verbatim from the production service.
const (
	// escalationMarker is the phrase the generation prompt instructs the
	// model to emit when it cannot help; its presence drives the
	// unanswered counter.
	escalationMarker = "人工客服"

	msgEscalationPrompt  = "很抱歉，我無法回答您的問題。是否需要轉接人工客服？<button onclick='requestHumanSupport()'>轉接人工客服</button>"
	msgOfferAgent        = "您是否需要轉接人工客服？<button onclick='requestHumanSupport()'>轉接人工客服</button>"
	msgForgotPassword    = "您是否需要<a href='/account_forget.html'>忘記密碼</a>"
	msgResetPassword     = "您是否需要<a href='/account_reset.html'>重設密碼</a>"
	msgCannotUnderstand  = "抱歉，我無法理解您的請求。"
	msgGenericFailure    = "抱歉，系統暫時無法處理您的請求，請稍後再試。"
	msgQueueConfirmation = "您已被加入人工客服等待隊列，請耐心等待。"
	msgFAQFallback       = "抱歉，我無法找到這個問題的答案。"
	msgAgentConnected    = "Agent connected"
	msgAgentJoined       = "客服人員已加入對話"
)

const ragPrompt = `你是智慧家庭服務的客服AI。請先根據用戶的輸入語言選擇適當的回答語言。如果用戶用繁體中文提問，你就用繁體中文回答；如果用戶用英文或其他語言提問，你應該用相同的語言回答他們的問題。
You are a RAG (Retrieval-Augmented Generation) agent for a smart-home customer service. Your primary function is to respond with data retrieved from a vector database. Follow these guidelines:

1. Data Retrieval and Response:
   - If relevant data is retrieved, respond using that information.
   - Format the response in HTML, converting any Markdown to appropriate HTML tags.

2. HTML Formatting:
   - Convert Markdown to HTML: '**text**' to <strong>, '*text*' to <em>, '[Link](URL)' to <a href="URL">
   - Use <br> for line breaks and <p> for paragraphs.
   - Use <ul> or <ol> with <li> for lists.
   - <img> should have a max width of 100%

3. No Data Retrieved:
   - If no relevant data is found, and the query is within the context of the service:
     - Suggest broadly related information if confident it's relevant.
     - Format: <strong>很抱歉，我沒有找到與您問題直接相關的信息。不過，關於[broad topic]，您可能會對以下信息感興趣：[suggested info]</strong>
   - If the query is outside the scope of the service:
     - Format: <strong>抱歉，我沒有關於這個問題的相關信息。請問您是否有其他關於智慧家庭服務的問題？如需協助也可以轉接人工客服。</strong>

4. Avoiding Hallucinations:
   - Only provide information that is grounded in the retrieved data.
   - Do not generate or invent information not present in the retrieved data.
   - If unsure, err on the side of not answering rather than providing potentially incorrect information.

5. Language:
   - Respond in the same language as the user's query (typically Chinese).

Remember, your primary goal is to provide accurate, retrieved information. Formatting and readability are important, but should never compromise the accuracy of the information.`

const classifierPrompt = `You are an intent classifier. You will classify user intent by context, not by keyword alone. intent should be one of these categories: 'summarize', 'forgot-password', 'reset-password', 'request-agent', 'fetch-info'. Response format: intent: <one of the categories>`

const (
	summarizeInstruction = "總結我們的對話記錄"
	handoverInstruction  = "簡要闡述用戶遇到的問題與你提供的解決方案。高亮強調用戶仍然需要解決的問題。這些資訊將會幫助接手你工作的客服快速了解情況，言簡意賅。"
)

type intent string

const (
	intentSummarize      intent = "summarize"
	intentForgotPassword intent = "forgot-password"
	intentResetPassword  intent = "reset-password"
	intentRequestAgent   intent = "request-agent"
	intentFetchInfo      intent = "fetch-info"
	intentUnknown        intent = "unknown"
)

// Compile-time check
var _ ResponsePipeline = (*pipelineUC)(nil)

// ResponsePipeline produces the bot's next message for an utterance:
// exact-match short-circuit, then intent dispatch, then the escalation
// threshold policy. It is stateless apart from the session store.
type ResponsePipeline interface {
	Respond(ctx context.Context, sessionID, utterance string) (model.ChatMessage, error)
	HandoverSummary(ctx context.Context, sessionID string) (string, error)
}

type pipelineUC struct {
	sessions repository.SessionRepository
	ai       adapter.AIServiceAdapter
	vectors  adapter.VectorIndex
	faqs     adapter.FAQIndex

	threshold   int
	topK        int
	tokenBudget int
	timeout     time.Duration

	enc *tiktoken.Tiktoken
	log *zerolog.Logger
}

func NewResponsePipeline(
	sessions repository.SessionRepository,
	ai adapter.AIServiceAdapter,
	vectors adapter.VectorIndex,
	faqs adapter.FAQIndex,
	cfg config.ChatConfig,
	timeout time.Duration,
	logger *zerolog.Logger,
) *pipelineUC {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		// Fall back to the rune-count heuristic in countTokens.
		logger.Warn().Err(err).Msg("tiktoken encoding unavailable")
		enc = nil
	}
	return &pipelineUC{
		sessions:    sessions,
		ai:          ai,
		vectors:     vectors,
		faqs:        faqs,
		threshold:   cfg.EscalationThreshold,
		topK:        cfg.TopK,
		tokenBudget: cfg.HistoryTokenBudget,
		timeout:     timeout,
		enc:         enc,
		log:         logger,
	}
}

func (p *pipelineUC) Respond(ctx context.Context, sessionID, utterance string) (model.ChatMessage, error) {
	log := logging.With(logging.WithSessID(ctx, sessionID), p.log)
	defer logging.TraceDuration(log, "ResponsePipeline.Respond")()

	// Stage 1: exact keyword match. On a hit the generation service is
	// never called for this turn.
	faq, err := p.faqs.ExactMatch(ctx, utterance)
	if err != nil {
		return model.ChatMessage{}, fmt.Errorf("exact match: %w", err)
	}
	if faq != nil {
		metrics.IncPipelineStage("exact_match")
		return model.NewChatMessage(model.SenderBot, faq.Answer, model.MessageTypeChat), nil
	}

	// Stage 2: intent classification and dispatch.
	it, err := p.classify(ctx, utterance)
	if err != nil {
		return model.ChatMessage{}, fmt.Errorf("classify intent: %w", err)
	}
	metrics.IncPipelineStage(string(it))
	log.Debug().Str("intent", string(it)).Msg("intent classified")

	var answer string
	switch it {
	case intentSummarize:
		answer, err = p.generateFromHistory(ctx, sessionID, summarizeInstruction)
	case intentForgotPassword:
		answer = msgForgotPassword
	case intentResetPassword:
		answer = msgResetPassword
	case intentRequestAgent:
		answer = msgOfferAgent
	case intentFetchInfo:
		answer, err = p.answerWithRetrieval(ctx, sessionID, utterance)
	default:
		answer = msgCannotUnderstand
	}
	if err != nil {
		return model.ChatMessage{}, err
	}

	return p.applyEscalationPolicy(ctx, sessionID, answer)
}

// applyEscalationPolicy is stage 3: an answer carrying the escalation
// marker bumps the unanswered counter and, at the threshold, is replaced
// by the fixed prompt; any other answer resets the counter.
func (p *pipelineUC) applyEscalationPolicy(ctx context.Context, sessionID, answer string) (model.ChatMessage, error) {
	if strings.Contains(answer, escalationMarker) {
		n, err := p.sessions.IncrementUnanswered(ctx, sessionID)
		if err != nil {
			return model.ChatMessage{}, fmt.Errorf("unanswered count: %w", err)
		}
		if n >= p.threshold {
			metrics.IncPipelineStage("escalated")
			return model.NewChatMessage(model.SenderBot, msgEscalationPrompt, model.MessageTypeChat), nil
		}
	} else if err := p.sessions.ResetUnanswered(ctx, sessionID); err != nil {
		return model.ChatMessage{}, fmt.Errorf("reset unanswered: %w", err)
	}
	return model.NewChatMessage(model.SenderBot, answer, model.MessageTypeChat), nil
}

func (p *pipelineUC) HandoverSummary(ctx context.Context, sessionID string) (string, error) {
	log := logging.With(logging.WithSessID(ctx, sessionID), p.log)
	defer logging.TraceDuration(log, "ResponsePipeline.HandoverSummary")()
	return p.generateFromHistory(ctx, sessionID, handoverInstruction)
}

func (p *pipelineUC) classify(ctx context.Context, utterance string) (intent, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	resp, err := p.ai.Chat(ctx, "", []adapter.Message{
		{Role: adapter.RoleSystem, Content: classifierPrompt},
		{Role: adapter.RoleUser, Content: utterance},
	})
	if err != nil {
		return intentUnknown, err
	}

	_, label, found := strings.Cut(resp, "intent:")
	if !found {
		return intentUnknown, nil
	}
	switch it := intent(strings.TrimSpace(label)); it {
	case intentSummarize, intentForgotPassword, intentResetPassword, intentRequestAgent, intentFetchInfo:
		return it, nil
	}
	return intentUnknown, nil
}

// answerWithRetrieval is the RAG path: embed, fetch topK passages, and
// generate constrained to the retrieved content only.
func (p *pipelineUC) answerWithRetrieval(ctx context.Context, sessionID, utterance string) (string, error) {
	embedCtx, cancel := context.WithTimeout(ctx, p.timeout)
	vector, err := p.ai.Embed(embedCtx, utterance)
	cancel()
	if err != nil {
		return "", fmt.Errorf("embed query: %w", err)
	}

	passages, err := p.vectors.Search(ctx, vector, p.topK)
	if err != nil {
		return "", fmt.Errorf("vector search: %w", err)
	}
	var parts []string
	for _, ps := range passages {
		parts = append(parts, strings.TrimSpace(ps.Content+" "+ps.Answer))
	}
	knowledge := strings.Join(parts, " ")

	history, err := p.userHistory(ctx, sessionID)
	if err != nil {
		return "", err
	}

	msgs := make([]adapter.Message, 0, len(history)+3)
	msgs = append(msgs, adapter.Message{Role: adapter.RoleSystem, Content: ragPrompt})
	msgs = append(msgs, history...)
	msgs = append(msgs, adapter.Message{Role: adapter.RoleAssistant, Content: knowledge})
	msgs = append(msgs, adapter.Message{Role: adapter.RoleUser, Content: utterance})

	genCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	return p.ai.Chat(genCtx, "", msgs)
}

// generateFromHistory serves the summarize and handover modes: the full
// transcript plus a fixed instruction. Bot turns map to the assistant
// role, everything else to the user role.
func (p *pipelineUC) generateFromHistory(ctx context.Context, sessionID, instruction string) (string, error) {
	transcript, err := p.sessions.Messages(ctx, sessionID)
	if err != nil {
		return "", fmt.Errorf("load transcript: %w", err)
	}

	history := make([]adapter.Message, 0, len(transcript))
	for _, m := range transcript {
		role := adapter.RoleUser
		if m.Sender == model.SenderBot {
			role = adapter.RoleAssistant
		}
		history = append(history, adapter.Message{Role: role, Content: m.Content})
	}
	history = p.trimToBudget(history)

	msgs := make([]adapter.Message, 0, len(history)+2)
	msgs = append(msgs, adapter.Message{Role: adapter.RoleSystem, Content: ragPrompt})
	msgs = append(msgs, history...)
	msgs = append(msgs, adapter.Message{Role: adapter.RoleUser, Content: instruction})

	genCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	return p.ai.Chat(genCtx, "", msgs)
}

// userHistory returns the user's prior turns (bot replies excluded),
// trimmed to the token budget.
func (p *pipelineUC) userHistory(ctx context.Context, sessionID string) ([]adapter.Message, error) {
	transcript, err := p.sessions.Messages(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load transcript: %w", err)
	}
	history := make([]adapter.Message, 0, len(transcript))
	for _, m := range transcript {
		if m.Sender == model.SenderBot {
			continue
		}
		history = append(history, adapter.Message{Role: adapter.RoleUser, Content: m.Content})
	}
	return p.trimToBudget(history), nil
}

// trimToBudget drops the oldest turns until the history fits the token
// budget, keeping chronological order.
func (p *pipelineUC) trimToBudget(history []adapter.Message) []adapter.Message {
	total := 0
	kept := 0
	for i := len(history) - 1; i >= 0; i-- {
		total += p.countTokens(history[i].Content)
		if total > p.tokenBudget {
			break
		}
		kept++
	}
	return history[len(history)-kept:]
}

func (p *pipelineUC) countTokens(s string) int {
	if p.enc != nil {
		return len(p.enc.Encode(s, nil, nil))
	}
	return len([]rune(s))
}
