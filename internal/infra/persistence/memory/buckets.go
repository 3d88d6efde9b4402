package memory

import (
	"encoding/json"
	"fmt"
)

// Buckets lists the snapshot partitions written by the SQL-backed stores, in
// write order.
var Buckets = []string{"experiments", "inventory"}

// EncodeBucket marshals one partition of the snapshot.
func (s Snapshot) EncodeBucket(bucket string) ([]byte, error) {
	switch bucket {
	case "experiments":
		if s.Experiments == nil {
			return []byte("{}"), nil
		}
		return json.Marshal(s.Experiments)
	case "inventory":
		if s.Inventory == nil {
			return []byte("null"), nil
		}
		return json.Marshal(s.Inventory)
	default:
		return nil, fmt.Errorf("unknown bucket %q", bucket)
	}
}

// DecodeBucket unmarshals payload into the named partition. Unknown buckets
// are ignored so older databases with extra rows still load.
func (s *Snapshot) DecodeBucket(bucket string, payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	var err error
	switch bucket {
	case "experiments":
		err = json.Unmarshal(payload, &s.Experiments)
	case "inventory":
		err = json.Unmarshal(payload, &s.Inventory)
	default:
		return nil
	}
	if err != nil {
		return fmt.Errorf("decode %s: %w", bucket, err)
	}
	return nil
}
