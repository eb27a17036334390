package pionengine

import (
	"encoding/json"
	"sort"

	"github.com/pion/webrtc/v4"
	"github.com/pkg/errors"

	"github.com/thesyncim/rtcsession/pkg/engine"
)

// convertStats flattens a pion report into engine records. Members are
// taken from the JSON form of each pion stat, whose keys are the W3C
// member names. Numbers land in Values, booleans as 0 or 1, strings in
// Attributes. Nested members are dropped.
func convertStats(report webrtc.StatsReport) ([]engine.Stats, error) {
	ids := make([]string, 0, len(report))
	for id := range report {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]engine.Stats, 0, len(ids))
	for _, id := range ids {
		raw, err := json.Marshal(report[id])
		if err != nil {
			return nil, errors.Wrapf(err, "encode stat %s", id)
		}
		var members map[string]any
		if err := json.Unmarshal(raw, &members); err != nil {
			return nil, errors.Wrapf(err, "decode stat %s", id)
		}
		out = append(out, statsFromMembers(id, members))
	}
	return out, nil
}

func statsFromMembers(id string, members map[string]any) engine.Stats {
	typ, _ := members["type"].(string)
	// pion timestamps are milliseconds.
	ms, _ := members["timestamp"].(float64)
	if s, ok := members["id"].(string); ok && s != "" {
		id = s
	}

	st := engine.NewStats(id, engine.StatsType(typ), int64(ms*1000))
	for k, v := range members {
		switch k {
		case "id", "type", "timestamp":
			continue
		}
		switch v := v.(type) {
		case float64:
			st.Values[k] = v
		case bool:
			if v {
				st.Values[k] = 1
			} else {
				st.Values[k] = 0
			}
		case string:
			st.Attributes[k] = v
		}
	}
	return st
}
