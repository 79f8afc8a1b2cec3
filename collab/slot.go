package collab

// Provider identifies the wire shape a slot's endpoint speaks.
type Provider string

const (
	ProviderOpenAICompatible       Provider = "openai-compatible"
	ProviderCustomOpenAICompatible Provider = "custom-openai-compatible"
	ProviderAnthropic              Provider = "anthropic"
	ProviderOllama                 Provider = "ollama"
)

// DexterSlotName is the stable identifier of the chief orchestrator slot.
// A session cannot proceed unless a slot with this name exists and is enabled.
const DexterSlotName = "dexter"

// Params holds sampling knobs forwarded to the LLM Client.
type Params struct {
	Temperature      float64 `json:"temperature,omitempty"`
	TopP             float64 `json:"top_p,omitempty"`
	MaxTokens        int     `json:"max_tokens"`
	FrequencyPenalty float64 `json:"frequency_penalty,omitempty"`
	PresencePenalty  float64 `json:"presence_penalty,omitempty"`
	ContextLength    int     `json:"context_length,omitempty"`
}

// SlotConfig is the declarative configuration of one collaboration participant.
type SlotConfig struct {
	Name                   string   `json:"name"`
	Enabled                bool     `json:"enabled"`
	Provider               Provider `json:"provider"`
	Endpoint               string   `json:"endpoint"`
	Model                  string   `json:"model"`
	APIKeyEnv              string   `json:"api_key_env,omitempty"`
	LocalModel             bool     `json:"local_model,omitempty"`
	Identity               string   `json:"identity,omitempty"`
	Role                   string   `json:"role,omitempty"`
	Prompt                 string   `json:"prompt,omitempty"`
	Params                 Params   `json:"params"`
	CollaborationEnabled   bool     `json:"collaboration_enabled"`
	CollaborationDirectory string   `json:"collaboration_directory,omitempty"`
}

// VoteWeights maps slot name to a nonnegative vote weight. Absent slots
// default to 1.0 wherever a weight lookup occurs (see Weight).
type VoteWeights map[string]float64

// Weight returns the configured weight for slot, defaulting to 1.0.
func (w VoteWeights) Weight(slot string) float64 {
	if w == nil {
		return 1.0
	}
	if v, ok := w[slot]; ok {
		return v
	}
	return 1.0
}

// IsDexter reports whether name is the chief-orchestrator slot.
func IsDexter(name string) bool {
	return name == DexterSlotName
}
