package dialer

import "github.com/zulandar/autodialer/internal/calllog"

// Effect is the status transition a channel event drives.
type Effect int

const (
	EffectNone Effect = iota
	EffectInCall
	EffectEnded
	EffectError
)

// Classification is the result of classifying one channel event name.
// Ignored events produce no log entry and no transition.
type Classification struct {
	Kind    calllog.Kind
	Effect  Effect
	Ignored bool
}

// eventTable maps every recognized channel event to its classification.
var eventTable = map[string]Classification{
	"call_started":              {Kind: calllog.KindCallStarted, Effect: EffectInCall},
	"call_connected":            {Kind: calllog.KindCallConnected},
	"call_ended":                {Kind: calllog.KindCallEnded, Effect: EffectEnded},
	"call_disconnected":         {Kind: calllog.KindCallDisconnected},
	"error":                     {Kind: calllog.KindCallError, Effect: EffectError},
	"call_redirect":             {Kind: calllog.KindCallRedirect},
	"call_redirecting":          {Kind: calllog.KindCallRedirecting},
	"call_connected_conference": {Kind: calllog.KindCallConnectedConference},
	"call_target_hangup":        {Kind: calllog.KindCallTargetHangup},
	"call_electoral_postcode":   {Kind: calllog.KindElectoralPostcode},
	"call_electoral_lookup":     {Kind: calllog.KindElectoralLookup},
	"call_electoral_target":     {Kind: calllog.KindElectoralTarget},
	"call_select_electorate":    {Kind: calllog.KindSelectElectorate},
	"call_survey":               {Kind: calllog.KindSurvey},
	"call_survey_result":        {Kind: calllog.KindSurveyResult},
}

// Classify maps a channel event name to its log kind and effect.
func Classify(name string) Classification {
	if c, ok := eventTable[name]; ok {
		return c
	}
	return Classification{Ignored: true}
}
