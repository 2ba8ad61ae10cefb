package eventlog

import (
	"fmt"
	"hash/crc32"
)

// calculateChecksum computes a CRC32-IEEE checksum over an event's key
// fields. Timestamp is excluded deliberately: it doesn't affect the
// meaning of the event and would make the checksum depend on wall-clock
// time recorded at write time rather than the task identity it describes.
func calculateChecksum(eventType EventType, taskID uint64, runID uint32, seq uint64) uint32 {
	data := fmt.Sprintf("%s|%d|%d|%d", eventType, taskID, runID, seq)
	return crc32.ChecksumIEEE([]byte(data))
}

// verifyChecksum reports whether event's stored checksum matches its
// fields.
func verifyChecksum(event Event) bool {
	expected := calculateChecksum(event.Type, uint64(event.TaskID), uint32(event.RunID), event.Seq)
	return event.Checksum == expected
}
