package progress

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type exampleCountingSink struct {
	saved int
}

func (s *exampleCountingSink) Consume(_ context.Context, batch []Event) error {
	for _, evt := range batch {
		if evt.Stage == StageSaved {
			s.saved++
		}
	}
	return nil
}

func (s *exampleCountingSink) Close(context.Context) error {
	return nil
}

// ExampleHub_Emit demonstrates emitting events and flushing via Close.
func ExampleHub_Emit() {
	sink := &exampleCountingSink{}
	hub := NewHub(Config{BufferSize: 4, MaxBatchEvents: 1, MaxBatchWait: time.Second}, sink)

	jobID := UUIDToBytes(uuid.MustParse("00000000-0000-0000-0000-000000000001"))
	hub.Emit(Event{JobID: jobID, TS: time.Unix(0, 0), Stage: StageJobStart, Year: "24"})
	hub.Emit(Event{
		JobID:  jobID,
		TS:     time.Unix(1, 0),
		Stage:  StageSaved,
		Branch: "CS",
		USN:    "1DS24CS001",
		Path:   "downloads/Results_PDF_2024/CS/ALICE_CS001.pdf",
	})
	if err := hub.Close(context.Background()); err != nil {
		panic(err)
	}

	fmt.Printf("artifacts saved: %d\n", sink.saved)
	// Output:
	// artifacts saved: 1
}
