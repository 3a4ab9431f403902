package aggregator

import (
	"encoding/json"
	"fmt"

	"github.com/ubuntu/device-scanner/internal/deverr"
)

// Message is the tagged union the per-host proxy POSTs (§4.7 / §6):
// either a bare "Heartbeat" or {"Data": "<serialized Device tree>"}.
type Message struct {
	Heartbeat bool
	Data      string
}

// UnmarshalJSON decodes the bare-string Heartbeat tag or the single-key
// Data object.
func (m *Message) UnmarshalJSON(b []byte) error {
	var bare string
	if err := json.Unmarshal(b, &bare); err == nil {
		if bare != "Heartbeat" {
			return fmt.Errorf("%w: unknown message %q", deverr.ErrParse, bare)
		}
		*m = Message{Heartbeat: true}
		return nil
	}

	var tagged map[string]string
	if err := json.Unmarshal(b, &tagged); err != nil {
		return fmt.Errorf("%w: %v", deverr.ErrParse, err)
	}
	data, ok := tagged["Data"]
	if !ok || len(tagged) != 1 {
		return fmt.Errorf("%w: expected {Data: <string>}", deverr.ErrParse)
	}
	*m = Message{Data: data}
	return nil
}
