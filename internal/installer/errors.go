package installer

import (
	"fmt"

	"github.com/packmill/packmill/internal/catalog"
)

// PolicyError refuses an install that the keep-only-latest setting would
// immediately undo. The refusal happens before the pipeline starts.
type PolicyError struct {
	Name   string
	Reason string
}

func (e *PolicyError) Error() string {
	return fmt.Sprintf("can't install '%s' because the setting to keep only latest %s is enabled",
		e.Name, e.Reason)
}

// DuplicateError rejects a second pipeline for an identity that is already
// being installed.
type DuplicateError struct {
	Name string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("'%s' is already being installed", e.Name)
}

// GoneError reports that the remote side no longer serves the artifact.
// Callers drop the catalog entry when they see it.
type GoneError struct {
	Name string
}

func (e *GoneError) Error() string {
	return fmt.Sprintf("Package '%s' is no longer available.", e.Name)
}

func policyReason(ch catalog.Channel) string {
	switch ch {
	case catalog.ChannelDaily:
		return "daily package of its build type"
	case catalog.ChannelBranched:
		return "branched package of its build type"
	case catalog.ChannelStable:
		return "stable package"
	case catalog.ChannelLTS:
		return "LTS package"
	}
	return string(ch) + " package"
}
