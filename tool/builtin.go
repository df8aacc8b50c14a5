package tool

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	httpRequestTimeout  = 30 * time.Second
	httpRequestMaxBytes = 64 * 1024
)

// RegisterBuiltins registers the built-in tools on a registry: the calculator
// and current_time are unrestricted, http_request requires the "http.request"
// permission.
func RegisterBuiltins(r *Registry) error {
	if err := r.Register(NewCalculatorTool()); err != nil {
		return err
	}
	if err := r.Register(NewCurrentTimeTool()); err != nil {
		return err
	}
	if err := r.Register(NewHTTPRequestTool(), "http.request"); err != nil {
		return err
	}
	return nil
}

// NewCalculatorTool evaluates basic arithmetic expressions. Results are pure
// functions of the expression, so the tool is cacheable.
func NewCalculatorTool() *FunctionTool {
	return NewFunctionTool(
		"calculator",
		"Evaluate an arithmetic expression. Supports +, -, *, /, %, ^ and parentheses.",
		Schema{
			Type: "object",
			Properties: map[string]Property{
				"expression": {Type: "string", Description: "The arithmetic expression to evaluate, e.g. \"(2+3)*4\"."},
			},
			Required: []string{"expression"},
		},
		func(ctx context.Context, args map[string]any) (any, error) {
			expr, _ := args["expression"].(string)
			value, err := evalExpression(expr)
			if err != nil {
				return nil, err
			}
			return strconv.FormatFloat(value, 'f', -1, 64), nil
		},
		func(o *FunctionToolOptions) { o.Cacheable = true },
	)
}

// NewCurrentTimeTool reports the current time, optionally in a named timezone
// and custom Go layout.
func NewCurrentTimeTool() *FunctionTool {
	return NewFunctionTool(
		"current_time",
		"Get the current date and time, optionally for a specific IANA timezone.",
		Schema{
			Type: "object",
			Properties: map[string]Property{
				"timezone": {Type: "string", Description: "IANA timezone name, e.g. \"Europe/Berlin\". Defaults to UTC."},
				"format":   {Type: "string", Description: "Go time layout. Defaults to RFC3339."},
			},
		},
		func(ctx context.Context, args map[string]any) (any, error) {
			loc := time.UTC
			if tz, _ := args["timezone"].(string); tz != "" {
				l, err := time.LoadLocation(tz)
				if err != nil {
					return nil, fmt.Errorf("unknown timezone %q: %w", tz, err)
				}
				loc = l
			}

			layout := time.RFC3339
			if f, _ := args["format"].(string); f != "" {
				layout = f
			}

			return time.Now().In(loc).Format(layout), nil
		},
	)
}

// NewHTTPRequestTool performs a bounded HTTP request and returns status plus a
// truncated body. Only http/https URLs are accepted and the response is capped
// so a tool call can never flood the conversation.
func NewHTTPRequestTool() *FunctionTool {
	return NewFunctionTool(
		"http_request",
		"Make an HTTP request and return the status code and response body.",
		Schema{
			Type: "object",
			Properties: map[string]Property{
				"url":    {Type: "string", Description: "HTTP or HTTPS URL to request."},
				"method": {Type: "string", Description: "HTTP method. Defaults to GET.", Enum: []string{"GET", "POST", "PUT", "DELETE"}},
				"body":   {Type: "string", Description: "Request body for POST/PUT."},
				"headers": {
					Type:        "object",
					Description: "Headers to send, as a string-to-string map.",
				},
			},
			Required: []string{"url"},
		},
		func(ctx context.Context, args map[string]any) (any, error) {
			rawURL, _ := args["url"].(string)

			parsed, err := url.Parse(rawURL)
			if err != nil {
				return nil, fmt.Errorf("invalid URL: %w", err)
			}
			if parsed.Scheme != "http" && parsed.Scheme != "https" {
				return nil, fmt.Errorf("only http and https URLs are supported")
			}
			if parsed.Host == "" {
				return nil, fmt.Errorf("missing hostname in URL")
			}

			method := "GET"
			if m, _ := args["method"].(string); m != "" {
				method = m
			}

			var body io.Reader
			if b, _ := args["body"].(string); b != "" {
				body = strings.NewReader(b)
			}

			req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
			if err != nil {
				return nil, fmt.Errorf("create request: %w", err)
			}

			if headers, _ := args["headers"].(map[string]any); headers != nil {
				for k, v := range headers {
					if s, ok := v.(string); ok {
						req.Header.Set(k, s)
					}
				}
			}

			client := &http.Client{Timeout: httpRequestTimeout}

			resp, err := client.Do(req)
			if err != nil {
				return nil, fmt.Errorf("request failed: %w", err)
			}
			defer resp.Body.Close()

			data, err := io.ReadAll(io.LimitReader(resp.Body, httpRequestMaxBytes))
			if err != nil {
				return nil, fmt.Errorf("read body: %w", err)
			}

			return map[string]any{
				"status_code": resp.StatusCode,
				"body":        string(data),
			}, nil
		},
	)
}

// evalExpression parses and evaluates an arithmetic expression with a small
// recursive descent parser. Grammar, lowest precedence first:
//
//	expr   = term { ("+" | "-") term }
//	term   = unary { ("*" | "/" | "%") unary }
//	unary  = [ "-" ] power
//	power  = atom [ "^" unary ]
//	atom   = number | "(" expr ")"
func evalExpression(input string) (float64, error) {
	p := &exprParser{input: input}
	value, err := p.parseExpr()
	if err != nil {
		return 0, err
	}
	p.skipSpaces()
	if p.pos < len(p.input) {
		return 0, fmt.Errorf("unexpected character %q at position %d", p.input[p.pos], p.pos)
	}
	return value, nil
}

type exprParser struct {
	input string
	pos   int
}

func (p *exprParser) skipSpaces() {
	for p.pos < len(p.input) && (p.input[p.pos] == ' ' || p.input[p.pos] == '\t') {
		p.pos++
	}
}

func (p *exprParser) peek() (byte, bool) {
	p.skipSpaces()
	if p.pos >= len(p.input) {
		return 0, false
	}
	return p.input[p.pos], true
}

func (p *exprParser) parseExpr() (float64, error) {
	left, err := p.parseTerm()
	if err != nil {
		return 0, err
	}
	for {
		op, ok := p.peek()
		if !ok || (op != '+' && op != '-') {
			return left, nil
		}
		p.pos++
		right, err := p.parseTerm()
		if err != nil {
			return 0, err
		}
		if op == '+' {
			left += right
		} else {
			left -= right
		}
	}
}

func (p *exprParser) parseTerm() (float64, error) {
	left, err := p.parseUnary()
	if err != nil {
		return 0, err
	}
	for {
		op, ok := p.peek()
		if !ok || (op != '*' && op != '/' && op != '%') {
			return left, nil
		}
		p.pos++
		right, err := p.parseUnary()
		if err != nil {
			return 0, err
		}
		switch op {
		case '*':
			left *= right
		case '/':
			if right == 0 {
				return 0, fmt.Errorf("division by zero")
			}
			left /= right
		case '%':
			divisor := int64(right)
			if divisor == 0 {
				return 0, fmt.Errorf("division by zero")
			}
			left = float64(int64(left) % divisor)
		}
	}
}

func (p *exprParser) parseUnary() (float64, error) {
	if op, ok := p.peek(); ok && op == '-' {
		p.pos++
		value, err := p.parseUnary()
		if err != nil {
			return 0, err
		}
		return -value, nil
	}
	return p.parsePower()
}

func (p *exprParser) parsePower() (float64, error) {
	base, err := p.parseAtom()
	if err != nil {
		return 0, err
	}
	if op, ok := p.peek(); ok && op == '^' {
		p.pos++
		exp, err := p.parseUnary()
		if err != nil {
			return 0, err
		}
		return math.Pow(base, exp), nil
	}
	return base, nil
}

func (p *exprParser) parseAtom() (float64, error) {
	ch, ok := p.peek()
	if !ok {
		return 0, fmt.Errorf("unexpected end of expression")
	}

	if ch == '(' {
		p.pos++
		value, err := p.parseExpr()
		if err != nil {
			return 0, err
		}
		next, ok := p.peek()
		if !ok || next != ')' {
			return 0, fmt.Errorf("missing closing parenthesis")
		}
		p.pos++
		return value, nil
	}

	start := p.pos
	for p.pos < len(p.input) && (isDigit(p.input[p.pos]) || p.input[p.pos] == '.') {
		p.pos++
	}
	if start == p.pos {
		return 0, fmt.Errorf("unexpected character %q at position %d", ch, p.pos)
	}

	value, err := strconv.ParseFloat(p.input[start:p.pos], 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", p.input[start:p.pos])
	}
	return value, nil
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
