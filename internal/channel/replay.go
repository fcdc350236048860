package channel

import (
	"github.com/muurk/pettracer/internal/protocol"
	"github.com/muurk/pettracer/internal/session"
)

// ReplayedRecord is a capture record run back through the codec.
type ReplayedRecord struct {
	Record CaptureRecord
	// Envelope is nil when the payload did not decode.
	Envelope *protocol.Envelope
	Frames   []*protocol.Frame
	// Errors holds envelope and per-frame decode errors. A bad frame does
	// not hide the other frames of the same envelope.
	Errors []error
}

// Replay decodes every record. Inbound payloads are server envelopes;
// outbound payloads are the bare client arrays.
func Replay(records []CaptureRecord) []ReplayedRecord {
	out := make([]ReplayedRecord, 0, len(records))
	for _, rec := range records {
		out = append(out, replayRecord(rec))
	}
	return out
}

func replayRecord(rec CaptureRecord) ReplayedRecord {
	r := ReplayedRecord{Record: rec}

	if rec.Direction == string(session.Outbound) {
		frames, err := protocol.DecodeClientEnvelope([]byte(rec.Payload))
		if err != nil {
			r.Errors = append(r.Errors, err)
			return r
		}
		r.Envelope = &protocol.Envelope{Type: protocol.EnvelopeArray, Frames: frames}
	} else {
		env, err := protocol.DecodeEnvelope([]byte(rec.Payload))
		if err != nil {
			r.Errors = append(r.Errors, err)
			return r
		}
		r.Envelope = env
	}

	for _, text := range r.Envelope.Frames {
		if protocol.IsHeartbeatFrame(text) {
			continue
		}
		frame, err := protocol.DecodeFrame(text)
		if err != nil {
			r.Errors = append(r.Errors, err)
			continue
		}
		r.Frames = append(r.Frames, frame)
	}
	return r
}

// ReplaySummary counts what a replay contained.
type ReplaySummary struct {
	Records  int
	Inbound  int
	Outbound int
	Frames   map[string]int // by command
	Errors   int
}

// Summarize tallies replayed records.
func Summarize(replayed []ReplayedRecord) ReplaySummary {
	s := ReplaySummary{Records: len(replayed), Frames: map[string]int{}}
	for _, r := range replayed {
		if r.Record.Direction == string(session.Outbound) {
			s.Outbound++
		} else {
			s.Inbound++
		}
		for _, f := range r.Frames {
			s.Frames[f.Command]++
		}
		s.Errors += len(r.Errors)
	}
	return s
}
