package orchestrator

import (
	"fmt"
	"strings"

	"github.com/bdobrica/Shoukan/internal/shoukan/resource"
)

// Phase selects a response template.
type Phase string

const (
	PhaseConfirm    Phase = "confirm"
	PhaseInProgress Phase = "in_progress"
	PhaseCompleted  Phase = "completed"
	PhaseFailed     Phase = "failed"
)

// GenerateResponse renders the fixed sentence for phase. Unknown phases
// yield an empty string.
func GenerateResponse(req *resource.Request, phase Phase) string {
	display := req.Type.Display()
	switch phase {
	case PhaseConfirm:
		return fmt.Sprintf("I'll create a %s named '%s' in %s. Is this correct?", display, req.Name, req.Location)
	case PhaseInProgress:
		return fmt.Sprintf("Creating your %s '%s' in %s. This may take a few minutes.", display, req.Name, req.Location)
	case PhaseCompleted:
		return fmt.Sprintf("✅ Your %s '%s' has been successfully created in %s!", display, req.Name, req.Location)
	case PhaseFailed:
		return fmt.Sprintf("❌ Sorry, I couldn't create the %s. Please try again or contact support.", display)
	default:
		return ""
	}
}

func underscoresToSpaces(s string) string {
	return strings.ReplaceAll(s, "_", " ")
}
