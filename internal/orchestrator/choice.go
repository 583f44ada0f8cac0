package orchestrator

import "strings"

// Checkbox labels as they appear in the interactive comment. DetectChoice
// matches against these exact labels, so renderers and the parser must
// stay in sync.
const (
	OptionCreatePR    = "**Analyze and create new PR**"
	OptionAddComments = "**Analyze and add to comments**"
)

// Choice is the parsed outcome of reading the interactive comment. The
// no-selection and conflicting cases are first-class values so callers
// can treat them as explicit no-ops instead of relying on substring
// guesswork.
type Choice int

const (
	ChoiceNone Choice = iota
	ChoiceCreatePR
	ChoiceAddComments
	ChoiceConflicting
)

func (c Choice) String() string {
	switch c {
	case ChoiceCreatePR:
		return "create_pr"
	case ChoiceAddComments:
		return "add_comments"
	case ChoiceConflicting:
		return "conflicting"
	default:
		return "none"
	}
}

// DetectChoice scans the comment body for checked checkbox lines. Exactly
// one checked option selects that mode; zero or both checked yield
// ChoiceNone/ChoiceConflicting and must cause no side effects.
func DetectChoice(body string) Choice {
	var createPR, addComments bool
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		lower := strings.ToLower(line)
		if !strings.HasPrefix(lower, "- [x]") {
			continue
		}
		if strings.Contains(line, OptionCreatePR) {
			createPR = true
		}
		if strings.Contains(line, OptionAddComments) {
			addComments = true
		}
	}

	switch {
	case createPR && addComments:
		return ChoiceConflicting
	case createPR:
		return ChoiceCreatePR
	case addComments:
		return ChoiceAddComments
	default:
		return ChoiceNone
	}
}
