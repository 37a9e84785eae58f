// Package redact masks personally identifiable information in customer text
// before it reaches the contact center.
package redact

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/comprehend"
	"github.com/aws/aws-sdk-go-v2/service/comprehend/types"
	"go.uber.org/zap"

	"github.com/dayuer/chatgw/internal/logger"
)

// Redactor rewrites text, masking sensitive spans.
type Redactor interface {
	Redact(ctx context.Context, text string) (string, error)
}

// Nop returns text unchanged.
type Nop struct{}

func (Nop) Redact(_ context.Context, text string) (string, error) { return text, nil }

type comprehendAPI interface {
	DetectPiiEntities(ctx context.Context, in *comprehend.DetectPiiEntitiesInput, optFns ...func(*comprehend.Options)) (*comprehend.DetectPiiEntitiesOutput, error)
}

// Comprehend masks the configured entity types detected by Amazon Comprehend
// with "[TYPE]".
type Comprehend struct {
	client   comprehendAPI
	types    map[types.PiiEntityType]bool
	language types.LanguageCode
	log      *zap.Logger
}

// NewComprehend creates a Comprehend redactor for entity types such as
// "EMAIL" or "CREDIT_DEBIT_NUMBER". "ALL" masks every detected type.
func NewComprehend(client comprehendAPI, entityTypes []string, language string, log *zap.Logger) *Comprehend {
	set := make(map[types.PiiEntityType]bool, len(entityTypes))
	for _, t := range entityTypes {
		if t = strings.ToUpper(strings.TrimSpace(t)); t != "" {
			set[types.PiiEntityType(t)] = true
		}
	}
	if language == "" {
		language = "en"
	}
	return &Comprehend{
		client:   client,
		types:    set,
		language: types.LanguageCode(language),
		log:      logger.OrNop(log).Named("redact"),
	}
}

func (c *Comprehend) wants(t types.PiiEntityType) bool {
	return c.types["ALL"] || c.types[t]
}

// Redact masks matching entities. Offsets reported by Comprehend count
// characters, not bytes.
func (c *Comprehend) Redact(ctx context.Context, text string) (string, error) {
	if text == "" || len(c.types) == 0 {
		return text, nil
	}
	out, err := c.client.DetectPiiEntities(ctx, &comprehend.DetectPiiEntitiesInput{
		Text:         aws.String(text),
		LanguageCode: c.language,
	})
	if err != nil {
		return "", fmt.Errorf("detect pii entities: %w", err)
	}

	var spans []types.PiiEntity
	for _, e := range out.Entities {
		if e.BeginOffset == nil || e.EndOffset == nil || !c.wants(e.Type) {
			continue
		}
		spans = append(spans, e)
	}
	if len(spans) == 0 {
		return text, nil
	}
	sort.Slice(spans, func(i, j int) bool {
		return aws.ToInt32(spans[i].BeginOffset) < aws.ToInt32(spans[j].BeginOffset)
	})

	runes := []rune(text)
	var b strings.Builder
	b.Grow(len(text))
	pos := 0
	for _, e := range spans {
		begin, end := int(aws.ToInt32(e.BeginOffset)), int(aws.ToInt32(e.EndOffset))
		if begin < pos || end > len(runes) || begin >= end {
			continue // overlapping or out of range
		}
		b.WriteString(string(runes[pos:begin]))
		b.WriteString("[" + string(e.Type) + "]")
		pos = end
	}
	b.WriteString(string(runes[pos:]))

	c.log.Debug("redacted pii",
		zap.Int("entities", len(spans)),
		zap.Int("chars", utf8.RuneCountInString(text)))
	return b.String(), nil
}
