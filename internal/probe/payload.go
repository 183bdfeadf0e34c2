package probe

import (
	"encoding/json"
	"math/rand"
)

var fillerRunes = []rune("abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789")

// envelopeOverhead is the serialized size of the JSON wrapper around an
// empty filler string: {"data":""}.
const envelopeOverhead = 11

// Payload is a synthetic upload body: random filler wrapped in a JSON
// envelope. The upload estimate counts the serialized length, not the
// nominal filler size.
type Payload struct {
	body []byte
}

type payloadEnvelope struct {
	Data string `json:"data"`
}

// NewPayload builds a payload whose serialized body is targetBytes
// long, as long as targetBytes leaves room for the envelope.
func NewPayload(targetBytes int64) *Payload {
	fill := targetBytes - envelopeOverhead
	if fill < 1 {
		fill = 1
	}
	body, _ := json.Marshal(payloadEnvelope{Data: randString(int(fill))})
	return &Payload{body: body}
}

// Body returns the serialized request body.
func (p *Payload) Body() []byte {
	return p.body
}

// Size returns the serialized body length in bytes.
func (p *Payload) Size() int64 {
	return int64(len(p.body))
}

func randString(n int) string {
	runes := make([]rune, n)
	for i := range runes {
		runes[i] = fillerRunes[rand.Intn(len(fillerRunes))]
	}
	return string(runes)
}
