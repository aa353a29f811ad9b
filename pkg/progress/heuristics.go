package progress

// Estimate is a display estimate of how far along the agent is. It is a
// heuristic: the percentage may go down when a later event matches a rule of
// lower precedence.
type Estimate struct {
	Label   string
	Percent int
}

// Labels shown for each rule, highest precedence first.
const (
	LabelSynthesizing     = "Synthesizing comprehensive response…"
	LabelResearchComplete = "Research complete, preparing response…"
	LabelExtracting       = "Extracting information from sources…"
	LabelResultsFound     = "Found results, analyzing content…"
	LabelSearching        = "Searching for current information…"
	LabelDetermining      = "Determining research approach…"
	LabelAnalyzing        = "Analyzing your question…"
)

// EstimateProgress derives a phase label and percentage from the buffered
// steps. Rules are evaluated in order and the first match wins.
func EstimateProgress(thinking []ThinkingStep, search []SearchStep) Estimate {
	if n := len(search); n > 0 {
		latest := search[n-1]

		switch {
		case latest.Phase() == PhaseSearchComplete:
			return Estimate{Label: LabelSynthesizing, Percent: 90}
		case latest.Type == SearchComplete:
			return Estimate{Label: LabelResearchComplete, Percent: 85}
		case anyURL(search):
			return Estimate{Label: LabelExtracting, Percent: 60}
		case latest.Phase() == PhaseResultsFound:
			return Estimate{Label: LabelResultsFound, Percent: 40}
		default:
			return Estimate{Label: LabelSearching, Percent: 30}
		}
	}

	if n := len(thinking); n > 0 && thinking[n-1].Phase == PhaseToolConsideration {
		return Estimate{Label: LabelDetermining, Percent: 20}
	}

	return Estimate{Label: LabelAnalyzing, Percent: 10}
}

func anyURL(steps []SearchStep) bool {
	for _, s := range steps {
		if s.URL != "" {
			return true
		}
	}
	return false
}
