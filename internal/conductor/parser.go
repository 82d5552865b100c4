package conductor

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"strings"
)

// MaxPreviewChars bounds the tool result preview, counted in runes.
const MaxPreviewChars = 500

// ParseError is returned for a line that is not a single JSON value.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string { return "Invalid JSON: " + e.Err.Error() }

func (e *ParseError) Unwrap() error { return e.Err }

// Accumulator holds the text of the turn in progress. Completed collects
// finished assistant segments; Delta collects streaming deltas of the segment
// currently being written.
type Accumulator struct {
	Completed string
	Delta     string
}

// Text returns the text of the turn so far.
func (a Accumulator) Text() string {
	return combine(a.Completed, a.Delta)
}

// Parser turns the lines of one child's stdout into events. A Parser is owned
// by a single reader and is not safe for concurrent use.
type Parser struct {
	agentID string
	logger  *slog.Logger
	acc     Accumulator
}

// NewParser returns a parser with empty accumulators for agentID.
func NewParser(agentID string, logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{agentID: agentID, logger: logger}
}

// Accumulated returns the current accumulator state.
func (p *Parser) Accumulated() Accumulator {
	return p.acc
}

// Parse decodes one NDJSON line and returns the events it produces. Unknown
// line types yield no events. A malformed line yields a *ParseError and
// leaves the accumulators untouched.
func (p *Parser) Parse(line string) ([]Event, error) {
	raw, err := decodeLine(line)
	if err != nil {
		return nil, err
	}

	obj, _ := raw.(map[string]any)
	typeStr := getString(obj, "type")

	switch typeStr {
	case "system":
		return p.parseSystem(obj), nil
	case "stream_event":
		return p.parseStreamEvent(obj), nil
	case "assistant":
		return p.parseAssistant(obj), nil
	case "user":
		return p.parseUser(obj), nil
	case "result":
		return p.parseResult(obj), nil
	default:
		p.logger.Debug("ignoring unknown event type", "agent_id", p.agentID, "type", typeStr)
		return nil, nil
	}
}

func decodeLine(line string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(line))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, &ParseError{Err: err}
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, &ParseError{Err: errors.New("trailing characters after JSON value")}
	}
	return raw, nil
}

func (p *Parser) parseSystem(obj map[string]any) []Event {
	var events []Event
	if sid, ok := obj["session_id"].(string); ok {
		events = append(events, SessionIDEvent{AgentID: p.agentID, SessionID: sid})
	}
	if model, ok := obj["model"].(string); ok {
		events = append(events, ModelInfoEvent{AgentID: p.agentID, Model: model})
	}
	return events
}

func (p *Parser) parseStreamEvent(obj map[string]any) []Event {
	inner := getMap(obj, "event")
	if getString(inner, "type") != "content_block_delta" {
		return nil
	}
	delta := getMap(inner, "delta")
	if getString(delta, "type") != "text_delta" {
		return nil
	}
	chunk, ok := delta["text"].(string)
	if !ok {
		return nil
	}

	p.acc.Delta += chunk
	return []Event{StreamChunkEvent{AgentID: p.agentID, Text: p.acc.Text()}}
}

func (p *Parser) parseAssistant(obj map[string]any) []Event {
	var events []Event
	content := getSlice(getMap(obj, "message"), "content")

	// Partial deltas already carried this text; only the tool calls are new.
	if text := joinTextBlocks(content, ""); text != "" {
		hadDeltas := p.acc.Delta != ""
		p.acc.Delta = ""
		if !hadDeltas {
			events = append(events, StreamChunkEvent{
				AgentID: p.agentID,
				Text:    combine(p.acc.Completed, text),
			})
		}
	}

	for _, item := range content {
		block, ok := item.(map[string]any)
		if !ok || getString(block, "type") != "tool_use" {
			continue
		}
		name, ok := block["name"].(string)
		if !ok {
			name = "unknown"
		}
		events = append(events, ToolUseEvent{
			AgentID:   p.agentID,
			ToolUseID: getString(block, "id"),
			ToolName:  name,
			ToolInput: block["input"],
		})
	}
	return events
}

func (p *Parser) parseUser(obj map[string]any) []Event {
	if p.acc.Delta != "" {
		p.acc.Completed = combine(p.acc.Completed, p.acc.Delta)
		p.acc.Delta = ""
	}

	var events []Event
	for _, item := range getSlice(getMap(obj, "message"), "content") {
		block, ok := item.(map[string]any)
		if !ok || getString(block, "type") != "tool_result" {
			continue
		}
		isError, _ := block["is_error"].(bool)
		events = append(events, ToolResultEvent{
			AgentID:       p.agentID,
			ToolUseID:     getString(block, "tool_use_id"),
			OutputPreview: truncateRunes(toolResultText(block), MaxPreviewChars),
			IsError:       isError,
		})
	}
	return events
}

func (p *Parser) parseResult(obj map[string]any) []Event {
	var events []Event
	isError, _ := obj["is_error"].(bool)
	resultStr, hasResult := obj["result"].(string)

	finalText := p.acc.Text()
	if finalText == "" {
		finalText = resultStr
	}

	switch {
	case isError:
		msg := resultStr
		if !hasResult {
			msg = "Unknown CLI error"
		}
		events = append(events, ErrorEvent{AgentID: p.agentID, Message: msg})
	case finalText != "":
		events = append(events, MessageCompleteEvent{AgentID: p.agentID, Text: finalText})
	}

	usage := getMap(obj, "usage")
	inputTokens, _ := getUint64(usage, "input_tokens")
	outputTokens, _ := getUint64(usage, "output_tokens")
	cost, ok := getFloat(obj, "total_cost_usd")
	if !ok {
		cost, _ = getFloat(obj, "cost_usd")
	}
	if inputTokens > 0 || outputTokens > 0 {
		events = append(events, UsageInfoEvent{
			AgentID:      p.agentID,
			InputTokens:  inputTokens,
			OutputTokens: outputTokens,
			CostUSD:      cost,
		})
	}

	p.acc = Accumulator{}
	return append(events, TurnCompleteEvent{AgentID: p.agentID})
}

// combine joins two text segments with a blank line, dropping empty ones.
func combine(a, b string) string {
	switch {
	case b == "":
		return a
	case a == "":
		return b
	default:
		return a + "\n\n" + b
	}
}

// joinTextBlocks concatenates the text of every {"type":"text"} block.
func joinTextBlocks(content []any, sep string) string {
	var parts []string
	for _, item := range content {
		block, ok := item.(map[string]any)
		if !ok || getString(block, "type") != "text" {
			continue
		}
		if text, ok := block["text"].(string); ok {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, sep)
}

func toolResultText(block map[string]any) string {
	switch content := block["content"].(type) {
	case string:
		return content
	case []any:
		return joinTextBlocks(content, "\n")
	default:
		return ""
	}
}

func truncateRunes(s string, n int) string {
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

func getString(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func getMap(m map[string]any, key string) map[string]any {
	v, _ := m[key].(map[string]any)
	return v
}

func getSlice(m map[string]any, key string) []any {
	v, _ := m[key].([]any)
	return v
}

// getUint64 reads a non-negative integer. Fractional or negative numbers
// report false.
func getUint64(m map[string]any, key string) (uint64, bool) {
	n, ok := m[key].(json.Number)
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseUint(n.String(), 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func getFloat(m map[string]any, key string) (float64, bool) {
	n, ok := m[key].(json.Number)
	if !ok {
		return 0, false
	}
	v, err := n.Float64()
	if err != nil {
		return 0, false
	}
	return v, true
}
