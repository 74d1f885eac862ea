package actions

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/oliveagle/jsonpath"
)

var tokenPattern = regexp.MustCompile(`{(\$[^{}]*)}`)

// Render replaces {$.path} tokens with values looked up in the run context.
// Tokens that resolve to nothing render as the empty string.
func Render(template string, runContext map[string]any) string {
	if !strings.Contains(template, "{$") {
		return template
	}
	return tokenPattern.ReplaceAllStringFunc(template, func(token string) string {
		path := strings.TrimSuffix(strings.TrimPrefix(token, "{"), "}")
		value, err := jsonpath.JsonPathLookup(runContext, path)
		if err != nil || value == nil {
			return ""
		}
		return fmt.Sprintf("%v", value)
	})
}

// Rendered is a SendMessage with every template resolved against a run context.
func (c SendMessage) Rendered(runContext map[string]any) SendMessage {
	return SendMessage{
		Channel: c.Channel,
		To:      Render(c.To, runContext),
		Subject: Render(c.Subject, runContext),
		Body:    Render(c.Body, runContext),
	}
}

func (c TagEntity) Rendered(runContext map[string]any) TagEntity {
	return TagEntity{Label: Render(c.Label, runContext)}
}
