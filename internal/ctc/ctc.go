package ctc

import "fmt"

// DefaultBlankID is the blank token index of the recognition model.
const DefaultBlankID = 0

// GreedyDecode collapses a logits matrix of shape (frames, vocabulary) into
// a token id sequence. Per frame it takes the argmax (ties resolve to the
// lowest index) and emits it when it is neither the blank id nor equal to
// the previous frame's raw argmax. The previous value tracks the raw argmax
// of every frame, including blank and suppressed frames, so a token
// interrupted by a blank is emitted again.
func GreedyDecode(logits [][]float32, blankID int) ([]int, error) {
	if blankID < 0 {
		return nil, fmt.Errorf("blank id must be non-negative, got %d", blankID)
	}
	if len(logits) == 0 {
		return nil, nil
	}

	vocab := len(logits[0])
	if vocab == 0 {
		return nil, fmt.Errorf("logits have empty vocabulary dimension")
	}

	tokens := make([]int, 0, len(logits))
	prev := -1
	for t, frame := range logits {
		if len(frame) != vocab {
			return nil, fmt.Errorf("ragged logits: frame %d has %d classes, expected %d",
				t, len(frame), vocab)
		}

		best := 0
		for k := 1; k < vocab; k++ {
			if frame[k] > frame[best] {
				best = k
			}
		}

		if best != blankID && best != prev {
			tokens = append(tokens, best)
		}
		prev = best
	}
	return tokens, nil
}
