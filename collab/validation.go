package collab

import "fmt"

// ValidateSlotConfig checks the structural invariants of one slot's
// configuration before it is admitted into a roster.
func ValidateSlotConfig(s SlotConfig) error {
	if s.Name == "" {
		return fmt.Errorf("%w: field=name reason=empty", ErrConfig)
	}
	switch s.Provider {
	case ProviderOpenAICompatible, ProviderCustomOpenAICompatible, ProviderAnthropic, ProviderOllama:
	default:
		return fmt.Errorf("%w: slot=%s reason=unknown provider %q", ErrUnknownProvider, s.Name, s.Provider)
	}
	if !s.LocalModel && s.Endpoint == "" {
		return fmt.Errorf("%w: slot=%s reason=endpoint is required for non-local slots", ErrConfig, s.Name)
	}
	if s.Params.Temperature < 0 || s.Params.Temperature > 2 {
		return fmt.Errorf("%w: slot=%s reason=temperature out of [0,2]", ErrConfig, s.Name)
	}
	if s.Params.TopP < 0 || s.Params.TopP > 1 {
		return fmt.Errorf("%w: slot=%s reason=top_p out of [0,1]", ErrConfig, s.Name)
	}
	if s.Params.MaxTokens <= 0 {
		return fmt.Errorf("%w: slot=%s reason=max_tokens must be > 0", ErrConfig, s.Name)
	}
	if s.Params.FrequencyPenalty < -2 || s.Params.FrequencyPenalty > 2 {
		return fmt.Errorf("%w: slot=%s reason=frequency_penalty out of [-2,2]", ErrConfig, s.Name)
	}
	if s.Params.PresencePenalty < -2 || s.Params.PresencePenalty > 2 {
		return fmt.Errorf("%w: slot=%s reason=presence_penalty out of [-2,2]", ErrConfig, s.Name)
	}
	if s.Params.ContextLength < 0 {
		return fmt.Errorf("%w: slot=%s reason=context_length must be >= 0", ErrConfig, s.Name)
	}
	return nil
}

// ValidateRoster checks the cross-slot invariant that a slot named
// "dexter" exists and is enabled, per spec §3.
func ValidateRoster(slots []SlotConfig) error {
	for i := range slots {
		if err := ValidateSlotConfig(slots[i]); err != nil {
			return err
		}
	}
	for i := range slots {
		if IsDexter(slots[i].Name) {
			if !slots[i].Enabled {
				return ErrDexterRequired
			}
			return nil
		}
	}
	return ErrDexterRequired
}

// EnabledCollaborators returns the slots eligible for dispatch: enabled
// and collaboration_enabled, preserving roster order.
func EnabledCollaborators(slots []SlotConfig) []SlotConfig {
	out := make([]SlotConfig, 0, len(slots))
	for i := range slots {
		if slots[i].Enabled && slots[i].CollaborationEnabled {
			out = append(out, slots[i])
		}
	}
	return out
}
