package auction

// Phase is one ordered stage of a session. Phases only move forward.
type Phase int

const (
	PhaseWarmup Phase = iota
	PhaseDiscussion
	PhaseBidding
	PhasePrediction
	PhaseResult
)

const phaseCount = 5

var phaseNames = [phaseCount]string{"warmup", "discussion", "bidding", "prediction", "result"}

func (p Phase) String() string {
	if p < 0 || int(p) >= phaseCount {
		return "unknown"
	}
	return phaseNames[p]
}
