package models

// Call types carried to the backend so it can tell a browser media leg from a
// dial-in leg.
const (
	CallTypeWebRTC = "webrtc"
	CallTypeDialIn = "dialin"
)

// CallerProfile is the caller-supplied identity for one call session.
type CallerProfile struct {
	Phone           string `json:"phone"`
	Name            string `json:"name"`
	Email           string `json:"email"`
	CallerChannelID string `json:"caller_channel_id"`
	ReferralCode    string `json:"referral_code,omitempty"`
	CampaignID      string `json:"campaign_id,omitempty"`
	Tenant          string `json:"tenant,omitempty"`
	Token           string `json:"token,omitempty"`
	CallType        string `json:"call_type,omitempty"`
}

// Fields returns the profile as a flat map for log payloads.
func (p CallerProfile) Fields() map[string]any {
	m := map[string]any{
		"phone":             p.Phone,
		"name":              p.Name,
		"email":             p.Email,
		"caller_channel_id": p.CallerChannelID,
	}
	if p.ReferralCode != "" {
		m["referral_code"] = p.ReferralCode
	}
	if p.CampaignID != "" {
		m["campaign_id"] = p.CampaignID
	}
	if p.CallType != "" {
		m["call_type"] = p.CallType
	}
	return m
}
