package biz

import (
	"context"
	"strings"

	"github.com/kart-io/logger"

	"github.com/kart-io/docschat/pkg/llm"
)

// Label is the classification of an incoming question.
type Label string

const (
	// LabelGeneric marks greetings, tests and messages with no real
	// question. They get a templated reply with no retrieval.
	LabelGeneric Label = "generic"
	// LabelSpecific marks questions that need retrieval.
	LabelSpecific Label = "specific"
)

const classifierPrompt = `Classify the user message as "generic" or "specific".

generic: greetings, tests, thanks, or messages with no real question.
specific: anything that asks about features, errors, configuration, or how to do something.

Examples:
"hi" -> generic
"test" -> generic
"thanks!" -> generic
"hello there" -> generic
"how do I create a function" -> specific
"why is my deploy failing" -> specific
"what does the retry config do" -> specific

Reply with exactly one word: generic or specific.

Message: `

// Classifier labels questions generic or specific with one cheap, short
// completion call.
type Classifier struct {
	chatProvider llm.ChatProvider
}

// NewClassifier creates a classifier backed by the given chat provider.
func NewClassifier(chatProvider llm.ChatProvider) *Classifier {
	return &Classifier{chatProvider: chatProvider}
}

// Classify returns the label for a question. Output is accepted only on an
// exact match of "generic"; anything else, including a provider failure,
// yields LabelSpecific. Misreading small talk as a question wastes one
// retrieval; misreading a question as small talk denies the user an answer,
// so failures lean toward specific.
func (c *Classifier) Classify(ctx context.Context, question string) Label {
	// 温度固定为 0，保证分类结果可复现
	out, err := c.chatProvider.Generate(ctx, classifierPrompt+question, "", llm.WithTemperature(0))
	if err != nil {
		logger.Warnw("classification failed, treating question as specific", "error", err.Error())
		return LabelSpecific
	}

	if strings.ToLower(strings.TrimSpace(out)) == string(LabelGeneric) {
		return LabelGeneric
	}
	return LabelSpecific
}
