package routing

import "fmt"

// Target is a resolved dialplan location: extension@context.
//
// It must contain only what the call-control gateway needs to place the leg.
// No campaign identity and no provider-specific fields belong here.
type Target struct {
	Extension string `json:"extension"`
	Context   string `json:"context"`
}

// Endpoint returns the Local channel dial string for the target.
func (t Target) Endpoint() string {
	return fmt.Sprintf("Local/%s@%s", t.Extension, t.Context)
}

// Contexts are the dialer-wide dialplan contexts per destination type.
type Contexts struct {
	Outbound string
	Agent    string
	Queue    string
	IVR      string
}
