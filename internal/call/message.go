package call

import "encoding/json"

// Signaling message tags exchanged over the rendezvous topic.
const (
	typeOffer     = "offer"
	typeAnswer    = "answer"
	typeCandidate = "candidate"
	typeBye       = "bye"
)

// message is the decoded form of one signaling message. Only the fields
// relevant to the tagged type are populated; unknown fields are ignored.
type message struct {
	Type      string `json:"type"`
	SDP       string `json:"sdp"`
	Label     int    `json:"label"`
	ID        string `json:"id"`
	Candidate string `json:"candidate"`
}

// parseMessage decodes one inbound payload. A false return means the
// payload was not usable signaling; the dispatch policy is to ignore such
// messages silently rather than surface a protocol error.
func parseMessage(data []byte) (message, bool) {
	var m message
	if err := json.Unmarshal(data, &m); err != nil {
		return message{}, false
	}
	return m, m.Type != ""
}

func encodeSDP(kind, sdp string) []byte {
	data, _ := json.Marshal(struct {
		Type string `json:"type"`
		SDP  string `json:"sdp"`
	}{kind, sdp})
	return data
}

func encodeCandidate(label int, id, candidate string) []byte {
	data, _ := json.Marshal(struct {
		Type      string `json:"type"`
		Label     int    `json:"label"`
		ID        string `json:"id"`
		Candidate string `json:"candidate"`
	}{typeCandidate, label, id, candidate})
	return data
}

func encodeBye() []byte {
	return []byte(`{"type":"bye"}`)
}
