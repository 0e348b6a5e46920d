package plugins

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"strings"
)

var quantumTerms = []string{
	"quantum", "superposition", "entanglement", "wave", "coherence",
	"observer", "tunneling", "field", "state", "collapse",
}

// QuantumInterface is the quantum-digital bridge: a deterministic digest of
// a prompt into coherence and entanglement readings. Pure; no I/O.
type QuantumInterface struct{}

// NewQuantumInterface creates the plugin.
func NewQuantumInterface() *QuantumInterface {
	return &QuantumInterface{}
}

func (p *QuantumInterface) Name() string { return "quantum-interface" }

func (p *QuantumInterface) Describe() string {
	return "collapses a prompt into coherence and entanglement readings"
}

func (p *QuantumInterface) Process(_ context.Context, input map[string]any) (map[string]any, error) {
	prompt := stringInput(input, "prompt")
	if prompt == "" {
		return nil, fmt.Errorf("quantum-interface: prompt is required")
	}
	interfaceType := stringInput(input, "interface_type")
	if interfaceType == "" {
		interfaceType = "quantum_bridge"
	}

	lower := strings.ToLower(prompt)
	matched := 0
	for _, term := range quantumTerms {
		if strings.Contains(lower, term) {
			matched++
		}
	}
	density := float64(matched) / float64(len(quantumTerms))

	// The "wave function collapse": a stable reading derived from the
	// prompt alone, so the same prompt always observes the same state.
	digest := sha256.Sum256([]byte(prompt))
	coherence := float64(binary.BigEndian.Uint16(digest[:2]))/65535.0*0.5 + density*0.5

	var classification string
	switch {
	case coherence >= 0.8:
		classification = "quantum_transcendent"
	case coherence >= 0.5:
		classification = "quantum_enhanced"
	default:
		classification = "standard_quantum"
	}

	return map[string]any{
		"interface_type":     interfaceType,
		"coherence_score":    coherence,
		"entanglement_level": density,
		"classification":     classification,
		"signature":          fmt.Sprintf("%x", digest[:8]),
	}, nil
}
