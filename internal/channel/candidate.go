package channel

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/zulandar/autodialer/internal/config"
)

// Candidate describes one realtime provider endpoint to race.
type Candidate struct {
	AppID   string `json:"app_id"`
	Cluster string `json:"cluster"`
	Key     string `json:"key"`
	Host    string `json:"host,omitempty"`
}

// CandidatesFromConfig converts configured channels to candidates.
func CandidatesFromConfig(chs []config.ChannelConfig) []Candidate {
	out := make([]Candidate, 0, len(chs))
	for _, ch := range chs {
		out = append(out, Candidate{AppID: ch.AppID, Cluster: ch.Cluster, Key: ch.Key, Host: ch.Host})
	}
	return out
}

// Placeholder reports whether the candidate carries demo credentials.
func (c Candidate) Placeholder() bool {
	return c.Key == config.PlaceholderKey || c.AppID == config.PlaceholderAppID
}

func (c Candidate) String() string {
	return fmt.Sprintf("%s@%s", c.AppID, c.Cluster)
}

// socketURL builds the websocket endpoint for the candidate.
func (c Candidate) socketURL() string {
	base := c.Host
	if base == "" {
		base = fmt.Sprintf("wss://ws-%s.pusher.com:443", c.Cluster)
	}
	q := url.Values{}
	q.Set("protocol", protocolVersion)
	q.Set("client", clientName)
	q.Set("version", Version)
	q.Set("flash", "false")
	return strings.TrimRight(base, "/") + "/app/" + url.PathEscape(c.Key) + "?" + q.Encode()
}

// allPlaceholders reports whether every candidate is a demo candidate.
func allPlaceholders(cands []Candidate) bool {
	for _, c := range cands {
		if !c.Placeholder() {
			return false
		}
	}
	return true
}

// ChannelName returns the private caller channel for a tenant session.
func ChannelName(tenant, token, callerChannelID string) string {
	return strings.Join([]string{"private-caller", tenant, token, callerChannelID}, "-")
}
