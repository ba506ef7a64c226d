package eventstream_test

import (
	"encoding/json"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/omnii-ai/brainmem/pkg/brain"
	"github.com/omnii-ai/brainmem/pkg/eventstream"
)

func TestEventstream(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Eventstream Suite")
}

var _ = Describe("Event", func() {
	It("marshals a message.ingested event with expected top-level keys", func() {
		now := time.Unix(1735689600, 0).UTC()
		event := eventstream.Event{
			SchemaVersion: eventstream.SchemaVersionV1,
			EventType:     eventstream.EventTypeMessageIngested,
			EventID:       "evt_123",
			EmittedAt:     now,
			UserID:        "user-1",
			Message: &brain.ChatMessage{
				ID:               "msg-1",
				UserID:           "user-1",
				Content:          "Dentist appointment on Friday",
				Timestamp:        now,
				Channel:          brain.ChannelSMS,
				SourceIdentifier: "+15551234567",
			},
		}

		payload, err := json.Marshal(event)
		Expect(err).NotTo(HaveOccurred())

		var got map[string]any
		Expect(json.Unmarshal(payload, &got)).To(Succeed())

		Expect(got).To(HaveKey("schema_version"))
		Expect(got).To(HaveKey("event_type"))
		Expect(got).To(HaveKey("event_id"))
		Expect(got).To(HaveKey("emitted_at"))
		Expect(got).To(HaveKey("user_id"))
		Expect(got).To(HaveKey("message"))
		Expect(got).NotTo(HaveKey("memory"))
	})

	It("marshals a memory.consolidated event with the memory payload", func() {
		event := eventstream.Event{
			SchemaVersion: eventstream.SchemaVersionV1,
			EventType:     eventstream.EventTypeMemoryConsolidated,
			EventID:       "evt_456",
			EmittedAt:     time.Now().UTC(),
			UserID:        "user-1",
			Memory: &brain.Memory{
				ID:     "mem-1",
				UserID: "user-1",
				Status: brain.StatusConsolidated,
			},
		}

		payload, err := json.Marshal(event)
		Expect(err).NotTo(HaveOccurred())

		var got map[string]any
		Expect(json.Unmarshal(payload, &got)).To(Succeed())

		Expect(got).To(HaveKey("memory"))
		Expect(got).NotTo(HaveKey("message"))
	})

	It("defines stable event constants", func() {
		Expect(eventstream.SchemaVersionV1).To(BeNumerically(">", 0))
		Expect(eventstream.EventTypeMessageIngested).To(Equal("brainmem.message.ingested"))
		Expect(eventstream.EventTypeMemoryConsolidated).To(Equal("brainmem.memory.consolidated"))
	})

	It("provides ErrNilEvent for nil payload validation", func() {
		Expect(eventstream.ErrNilEvent).NotTo(BeNil())
		Expect(eventstream.ErrNilEvent).To(MatchError("nil event"))
	})
})
