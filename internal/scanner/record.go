// internal/scanner/record.go
package scanner

import (
	"fmt"
	"strconv"
	"strings"
)

// systemRecordFields is the number of payload fields in a SIN reply
const systemRecordFields = 14

// SystemRecord is one system entry stored on the scanner
type SystemRecord struct {
	Index            int    `json:"index"`
	Type             string `json:"type"`
	Name             string `json:"name"`
	QuickKey         string `json:"quick_key"`
	HoldTime         string `json:"hold_time"`
	Lockout          string `json:"lockout"`
	Reserved         string `json:"reserved"`
	Delay            string `json:"delay"`
	Skip             string `json:"skip"`
	EmergencyAlert   string `json:"emergency_alert"`
	RevIndex         int    `json:"rev_index"`
	FwdIndex         int    `json:"fwd_index"`
	ChannelGroupHead int    `json:"channel_group_head"`
	ChannelGroupTail int    `json:"channel_group_tail"`
	Sequence         string `json:"sequence"`
}

// ParseSystemRecord decodes a SIN payload for the system at index.
// Extra trailing fields are ignored.
func ParseSystemRecord(index int, payload []string) (SystemRecord, error) {
	if len(payload) < systemRecordFields {
		return SystemRecord{}, &RecordFormatError{
			Command: CmdSystemInfo,
			Payload: payload,
			Err:     fmt.Errorf("expected %d fields, got %d", systemRecordFields, len(payload)),
		}
	}

	indices := make([]int, 4)
	for i, pos := range []int{9, 10, 11, 12} {
		v, err := parseIndex(payload[pos])
		if err != nil {
			return SystemRecord{}, &RecordFormatError{Command: CmdSystemInfo, Payload: payload, Err: err}
		}
		indices[i] = v
	}

	return SystemRecord{
		Index:            index,
		Type:             payload[0],
		Name:             payload[1],
		QuickKey:         payload[2],
		HoldTime:         payload[3],
		Lockout:          payload[4],
		Reserved:         payload[5],
		Delay:            payload[6],
		Skip:             payload[7],
		EmergencyAlert:   payload[8],
		RevIndex:         indices[0],
		FwdIndex:         indices[1],
		ChannelGroupHead: indices[2],
		ChannelGroupTail: indices[3],
		Sequence:         payload[13],
	}, nil
}

// Fields returns the record in SIN payload order
func (r SystemRecord) Fields() []string {
	return []string{
		r.Type, r.Name, r.QuickKey, r.HoldTime, r.Lockout, r.Reserved,
		r.Delay, r.Skip, r.EmergencyAlert,
		strconv.Itoa(r.RevIndex), strconv.Itoa(r.FwdIndex),
		strconv.Itoa(r.ChannelGroupHead), strconv.Itoa(r.ChannelGroupTail),
		r.Sequence,
	}
}

// IsHead reports whether the record has no predecessor
func (r SystemRecord) IsHead() bool {
	return r.RevIndex == EndOfList
}

// IsTail reports whether the record has no successor
func (r SystemRecord) IsTail() bool {
	return r.FwdIndex == EndOfList
}

// parseIndex decodes a record index; an empty field means no record.
// Negative or non-numeric indices are format errors, not the end of the list.
func parseIndex(field string) (int, error) {
	field = strings.TrimSpace(field)
	if field == "" {
		return EndOfList, nil
	}

	v, err := strconv.Atoi(field)
	if err != nil {
		return 0, fmt.Errorf("invalid record index %q: %w", field, err)
	}
	if v < 0 {
		return 0, fmt.Errorf("invalid record index %d", v)
	}
	return v, nil
}
