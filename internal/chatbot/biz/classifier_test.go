package biz

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifier_Generic(t *testing.T) {
	chat := &fakeChatProvider{generateOut: "generic"}
	c := NewClassifier(chat)

	assert.Equal(t, LabelGeneric, c.Classify(context.Background(), "hi"))
	assert.Contains(t, chat.lastPrompt, "hi")
}

func TestClassifier_GenericWithNoise(t *testing.T) {
	// 模型输出带大小写和空白时仍按 generic 处理
	chat := &fakeChatProvider{generateOut: "  Generic \n"}
	c := NewClassifier(chat)

	assert.Equal(t, LabelGeneric, c.Classify(context.Background(), "hello there"))
}

func TestClassifier_Specific(t *testing.T) {
	chat := &fakeChatProvider{generateOut: "specific"}
	c := NewClassifier(chat)

	assert.Equal(t, LabelSpecific, c.Classify(context.Background(), "how do I retry a step"))
}

func TestClassifier_NonExactOutputIsSpecific(t *testing.T) {
	// 只接受精确的 "generic"，其余一律按 specific 处理
	chat := &fakeChatProvider{generateOut: "mostly generic I think"}
	c := NewClassifier(chat)

	assert.Equal(t, LabelSpecific, c.Classify(context.Background(), "test"))
}

func TestClassifier_ProviderErrorIsSpecific(t *testing.T) {
	// 分类失败宁可多做一次检索，也不能把问题当寒暄吞掉
	chat := &fakeChatProvider{generateErr: errors.New("model unavailable")}
	c := NewClassifier(chat)

	assert.Equal(t, LabelSpecific, c.Classify(context.Background(), "hi"))
}

func TestClassifier_PinsTemperatureToZero(t *testing.T) {
	// 分类调用固定温度为 0，保证同一消息的标签可复现
	chat := &fakeChatProvider{generateOut: "generic"}
	c := NewClassifier(chat)

	c.Classify(context.Background(), "hi")

	if assert.NotNil(t, chat.lastGenOpts.Temperature) {
		assert.Equal(t, 0.0, *chat.lastGenOpts.Temperature)
	}
}
