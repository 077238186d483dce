package calls

import "outbound-dialer/internal/campaigns"

// Q.850 termination causes reported by the call-control platform.
const (
	CauseNormalClearing        = 16
	CauseUserBusy              = 17
	CauseNoUserResponse        = 18
	CauseNoAnswer              = 19
	CauseSubscriberAbsent      = 20
	CauseCallRejected          = 21
	CauseNumberChanged         = 22
	CauseDestinationOutOfOrder = 27
	CauseInvalidNumberFormat   = 28
	CauseNoCircuitAvailable    = 34
	CauseNetworkOutOfOrder     = 38
	CauseTemporaryFailure      = 41
	CauseSwitchingCongestion   = 42
	CauseChannelUnavailable    = 44
)

// Disposition labels.
const (
	LabelAnswered        = "ANSWERED"
	LabelBusy            = "BUSY"
	LabelNoAnswer        = "NO ANSWER"
	LabelRejected        = "REJECTED"
	LabelInvalid         = "INVALID"
	LabelUnreachable     = "UNREACHABLE"
	LabelCongestion      = "CONGESTION"
	LabelFailed          = "FAILED"
	LabelOriginateFailed = "originate_failed"
)

// Disposition is the outcome derived from a termination cause.
type Disposition struct {
	Status campaigns.LeadStatus `json:"status"`
	Label  string               `json:"label"`
}

// ResolveDisposition maps a termination cause to a lead status and label.
// Unmapped causes resolve to failed/FAILED.
func ResolveDisposition(cause int) Disposition {
	switch cause {
	case CauseNormalClearing:
		return Disposition{campaigns.LeadAnswered, LabelAnswered}
	case CauseUserBusy:
		return Disposition{campaigns.LeadBusy, LabelBusy}
	case CauseNoUserResponse, CauseNoAnswer, CauseSubscriberAbsent:
		return Disposition{campaigns.LeadNoAnswer, LabelNoAnswer}
	case CauseCallRejected:
		return Disposition{campaigns.LeadFailed, LabelRejected}
	case CauseNumberChanged, CauseInvalidNumberFormat:
		return Disposition{campaigns.LeadFailed, LabelInvalid}
	case CauseDestinationOutOfOrder, CauseNetworkOutOfOrder:
		return Disposition{campaigns.LeadFailed, LabelUnreachable}
	case CauseNoCircuitAvailable, CauseSwitchingCongestion, CauseChannelUnavailable:
		return Disposition{campaigns.LeadFailed, LabelCongestion}
	default:
		return Disposition{campaigns.LeadFailed, LabelFailed}
	}
}
