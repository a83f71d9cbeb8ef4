// Package providers maps every dialect to its adapter factory and registers
// the adapters a catalog needs.
package providers

import (
	"github.com/blueberrycongee/chatrelay/internal/provider"
	"github.com/blueberrycongee/chatrelay/internal/provider/anthropic"
	"github.com/blueberrycongee/chatrelay/internal/provider/baidu"
	"github.com/blueberrycongee/chatrelay/internal/provider/cohere"
	"github.com/blueberrycongee/chatrelay/internal/provider/gemini"
	"github.com/blueberrycongee/chatrelay/internal/provider/huggingface"
	"github.com/blueberrycongee/chatrelay/internal/provider/openailike"
	"github.com/blueberrycongee/chatrelay/internal/provider/qwen"
	"github.com/blueberrycongee/chatrelay/internal/provider/replicate"
)

// DialectFactories maps each dialect to its adapter factory.
var DialectFactories = map[provider.Dialect]provider.Factory{
	provider.DialectChat:           openailike.New,
	provider.DialectMessages:       anthropic.New,
	provider.DialectContents:       gemini.New,
	provider.DialectOAuth:          baidu.New,
	provider.DialectDashScope:      qwen.New,
	provider.DialectCohere:         cohere.New,
	provider.DialectPrediction:     replicate.New,
	provider.DialectTextGeneration: huggingface.New,
}

// RegisterAll creates one adapter per dialect and registers it.
func RegisterAll(registry *provider.Registry, deps provider.Deps) {
	for _, factory := range DialectFactories {
		registry.RegisterAdapter(factory(deps))
	}
}

