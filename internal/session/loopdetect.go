package session

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/forgehq/forge/internal/models"
)

// toolCallSignature hashes {name, serialized arguments, raw_arguments?}
// into a comparable string.
func toolCallSignature(call models.ToolCall) string {
	h := sha256.New()
	h.Write([]byte(call.Name))
	h.Write([]byte{0})
	h.Write(call.EffectiveArguments())
	if call.RawArguments != "" {
		h.Write([]byte{0})
		h.Write([]byte(call.RawArguments))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// flatToolCallSignatures walks history in order and returns one
// signature per tool call across all assistant turns.
func flatToolCallSignatures(history []models.Turn) []string {
	var sigs []string
	for _, t := range history {
		if t.Kind != models.TurnAssistant {
			continue
		}
		for _, c := range t.ToolCalls {
			sigs = append(sigs, toolCallSignature(c))
		}
	}
	return sigs
}

// detectLoop, given a window size w, checks
// whether the last w tool-call signatures are w/p verbatim repeats of
// the first p of them, for p in {1,2,3} with w%p==0.
func detectLoop(sigs []string, window int) bool {
	if window <= 0 || len(sigs) < window {
		return false
	}
	tail := sigs[len(sigs)-window:]
	for _, p := range []int{1, 2, 3} {
		if window%p != 0 {
			continue
		}
		pattern := tail[:p]
		repeats := window / p
		matched := true
		for r := 0; r < repeats && matched; r++ {
			for i := 0; i < p; i++ {
				if tail[r*p+i] != pattern[i] {
					matched = false
					break
				}
			}
		}
		if matched {
			return true
		}
	}
	return false
}
