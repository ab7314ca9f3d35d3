// Package gateway wraps the generative backend behind typed world-building
// and narration operations. Every operation has a documented fallback so a
// bad generation never aborts a game on its own.
package gateway

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"
	"text/template"
	"time"

	"github.com/tatianab/roguellm/internal/retry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

//go:embed prompts/*.txt
var promptFS embed.FS

var prompts = template.Must(template.ParseFS(promptFS, "prompts/*.txt"))

// Tier selects between the cheap, fast model and the capable, slow one.
type Tier int

const (
	TierLow Tier = iota
	TierHigh
)

func (t Tier) String() string {
	if t == TierHigh {
		return "high"
	}
	return "low"
}

// Completer runs one completion against the backend.
type Completer interface {
	Complete(ctx context.Context, tier Tier, system, user string) (string, error)
}

// Theme is the theme context every prompt carries.
type Theme struct {
	Raw      string
	Expanded string
	Language string
}

// Tiers used per operation.
const (
	tierTheme     = TierLow
	tierTemplates = TierLow
	tierMap       = TierLow
	tierPlacement = TierLow
	tierNarration = TierLow
)

// Gateway exposes the generation operations.
type Gateway struct {
	llm    Completer
	policy retry.Policy
	tracer trace.Tracer
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithRetryPolicy overrides the retry policy for transient provider errors.
func WithRetryPolicy(p retry.Policy) Option {
	return func(g *Gateway) { g.policy = p }
}

func New(llm Completer, opts ...Option) *Gateway {
	g := &Gateway{
		llm:    llm,
		policy: retry.Generation,
		tracer: otel.Tracer("github.com/tatianab/roguellm/internal/gateway"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// complete renders the "<name>.system" and "<name>.user" templates and runs
// them with retries on transient provider errors.
func (g *Gateway) complete(ctx context.Context, name string, tier Tier, data any) (string, error) {
	ctx, span := g.tracer.Start(ctx, "gateway."+name, trace.WithAttributes(
		attribute.String("gateway.tier", tier.String()),
	))
	defer span.End()

	system, err := render(name+".system", data)
	if err != nil {
		return "", err
	}
	user, err := render(name+".user", data)
	if err != nil {
		return "", err
	}

	out, err := retry.Do(ctx, g.policy, isTransient, func(ctx context.Context) (string, error) {
		return g.llm.Complete(ctx, tier, system, user)
	}, retry.WithNotify(func(err error, next time.Duration) {
		log.Printf("gateway: %s: transient error, retrying in %s: %v", name, next.Round(time.Millisecond), err)
	}))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return "", fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}

func render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := prompts.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render prompt %s: %w", name, err)
	}
	return buf.String(), nil
}

// isTransient reports whether a provider error is worth retrying.
func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	switch status.Code(err) {
	case codes.ResourceExhausted, codes.Unavailable, codes.DeadlineExceeded, codes.Aborted, codes.Internal:
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "429") || strings.Contains(msg, "503") || strings.Contains(msg, "timeout")
}

var fenced = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*(.*?)\\s*```")

// stripFences returns the body of the first fenced block, or the trimmed
// text when there is none.
func stripFences(s string) string {
	if m := fenced.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(s)
}

// NormalizeLanguage canonicalizes a BCP 47 tag such as "en" or "pt-BR".
func NormalizeLanguage(lang string) (string, error) {
	if strings.TrimSpace(lang) == "" {
		return "en", nil
	}
	tag, err := language.Parse(lang)
	if err != nil {
		return "", fmt.Errorf("invalid language %q: %w", lang, err)
	}
	return tag.String(), nil
}

// LanguageName returns the English name of a language tag for prompts.
func LanguageName(lang string) string {
	tag, err := language.Parse(lang)
	if err != nil {
		return lang
	}
	if name := display.English.Languages().Name(tag); name != "" {
		return name
	}
	return lang
}

// promptData is what every template sees.
type promptData struct {
	Theme        Theme
	LanguageName string
	Extra        any
}

func newPromptData(theme Theme, extra any) promptData {
	return promptData{Theme: theme, LanguageName: LanguageName(theme.Language), Extra: extra}
}
