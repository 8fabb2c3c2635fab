// Package model defines the minimal text-generation abstraction personas are
// built on, plus a deterministic MockModel for tests. Provider adapters for
// Anthropic and OpenAI live in the respective subpackages; personas remain
// provider agnostic and fall back to templates when no model is configured.
package model
